// Package menu drives the keyword editing flows: creating a record, the
// interactive editing menu (add keyword, add image, delete, exit) and the
// read-only preview.
package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ibis-bot/ibis/internal/collect"
	"github.com/ibis-bot/ibis/internal/gate"
	"github.com/ibis-bot/ibis/internal/imagehost"
	"github.com/ibis-bot/ibis/internal/keyword"
	"github.com/ibis-bot/ibis/internal/logger"
	"github.com/ibis-bot/ibis/internal/platform"
)

// Component IDs of the editing menu. Select values are tagged with a kind
// prefix so the delete flow never has to guess what a value is.
const (
	btnAddKeyword = "menu:addKeyword"
	btnAddContent = "menu:addContent"
	btnDelete     = "menu:delete"
	btnExit       = "menu:exit"
	btnDeleteAll  = "menu:deleteAll"
	selectList    = "menu:list"

	tagKeyword = "k:"
	tagImage   = "i:"
)

// User-facing notices, kept verbatim from the original community bot.
const (
	msgKeywordExists   = "\\❌ | 此觸發詞已經在清單內，請勿重複添加。"
	msgKeywordMissing  = "\\❌ | 找不到此觸發詞，請確認輸入格式是否正確。"
	msgUploadFailed    = "\\❌ | 圖片上傳失敗，請聯絡管理員處理。"
	msgUpdateFailed    = "\\❌ | 操作失敗，資料庫更新失敗。"
	msgUpdated         = "\\✔️ | 操作成功，觸發詞已更新。"
	msgMenuEnded       = "編輯已結束"
	msgAskContent      = "請回覆要添加的內容:"
	msgPickTarget      = "請選擇要刪除的項目"
	msgDeleteWholeHint = "觸發詞與圖片無多餘選項時，將刪除**整個**觸發詞"
)

// Store is the record persistence the flows need. *keyword.Store satisfies
// it; tests plug an in-memory double.
type Store interface {
	Find(ctx context.Context, guildID, kw string) (*keyword.Record, error)
	Exists(ctx context.Context, guildID, kw string) (bool, error)
	Create(ctx context.Context, rec *keyword.Record) error
	PushKeyword(ctx context.Context, guildID, target, kw string) error
	PushResponse(ctx context.Context, guildID, target string, resp keyword.Response) error
	PullKeyword(ctx context.Context, guildID, target, kw string) error
	PullResponse(ctx context.Context, guildID, target, url string) error
	Delete(ctx context.Context, guildID, target string) error
}

// Confirmer runs the yes/no confirmation step. *gate.Gate satisfies it.
type Confirmer interface {
	Confirm(ctx context.Context, req gate.Request) (bool, error)
}

// Request identifies one editing session: the invoking user, the guild, and
// the bot's status message the flow edits in place.
type Request struct {
	GuildID  string
	Editable platform.MessageRef
	Author   platform.User
	Keyword  string
	ImageURL string
}

// Runner wires the editing flows to their collaborators.
type Runner struct {
	msgr    platform.Messenger
	store   Store
	host    imagehost.Host
	gate    Confirmer
	cols    collect.Source
	replies collect.ReplySource
}

func NewRunner(msgr platform.Messenger, store Store, host imagehost.Host, g Confirmer, cols collect.Source, replies collect.ReplySource) *Runner {
	return &Runner{
		msgr:    msgr,
		store:   store,
		host:    host,
		gate:    g,
		cols:    cols,
		replies: replies,
	}
}

// New creates a fresh keyword record: conflict check, confirmation, upload,
// insert. The status message ends on a success embed or an error notice.
func (r *Runner) New(ctx context.Context, req Request) error {
	exists, err := r.store.Exists(ctx, req.GuildID, req.Keyword)
	if err != nil {
		return err
	}
	if exists {
		out := platform.Outgoing{Content: msgKeywordExists}
		if rec, err := r.store.Find(ctx, req.GuildID, req.Keyword); err == nil {
			out.Embeds = []platform.Embed{keywordEmbed(rec, req.Keyword, embedConflict)}
		}
		return r.msgr.Edit(ctx, req.Editable, out)
	}

	ok, err := r.gate.Confirm(ctx, gate.Request{
		Editable: req.Editable,
		Author:   req.Author,
		Keyword:  req.Keyword,
		ImageURL: req.ImageURL,
	})
	if err != nil || !ok {
		return err
	}

	img, err := r.host.Upload(ctx, req.ImageURL)
	if err != nil {
		logger.Warn("keyword image upload failed", "keyword", req.Keyword, "error", err)
		return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: msgUploadFailed})
	}

	rec := &keyword.Record{
		GuildID:   req.GuildID,
		Keywords:  []string{req.Keyword},
		Responses: []keyword.Response{{URL: img.URL, DeleteHash: img.DeleteHash}},
		CreatedBy: req.Author.ID,
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: msgUpdateFailed})
	}

	return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{
		Content: " ",
		Embeds: []platform.Embed{{
			Title: "\\✨ | 觸發詞成功加入清單!",
			Fields: []platform.EmbedField{
				{Name: "觸發詞", Value: req.Keyword, Inline: true},
				{Name: "申請人", Value: "<@" + req.Author.ID + ">", Inline: true},
			},
			ImageURL: img.URL,
		}},
	})
}

// Edit opens the interactive menu on an existing record and runs exactly one
// action: add keyword, add image, delete, or exit.
func (r *Runner) Edit(ctx context.Context, req Request) error {
	exists, err := r.store.Exists(ctx, req.GuildID, req.Keyword)
	if err != nil {
		return err
	}
	if !exists {
		return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: msgKeywordMissing})
	}

	rec, err := r.store.Find(ctx, req.GuildID, req.Keyword)
	if err != nil {
		return err
	}

	menuRow := platform.Row{Buttons: []platform.Button{
		{ID: btnAddKeyword, Label: "添加觸發詞", Style: platform.ButtonPrimary},
		{ID: btnAddContent, Label: "添加圖片", Style: platform.ButtonPrimary},
		{ID: btnDelete, Label: "刪除", Style: platform.ButtonDanger},
		{ID: btnExit, Label: "✖️", Style: platform.ButtonSecondary},
	}}

	err = r.msgr.Edit(ctx, req.Editable, platform.Outgoing{
		Content: " ",
		Embeds:  []platform.Embed{keywordEmbed(rec, req.Keyword, embedEdit)},
		Rows:    []platform.Row{menuRow},
	})
	if err != nil {
		return err
	}

	ev, ok := r.awaitPress(ctx, req)
	if !ok {
		return ctx.Err()
	}

	// collapse the menu to the lone exit button while the chosen flow runs
	exitRow := platform.Row{Buttons: []platform.Button{menuRow.Buttons[3]}}
	if err := r.msgr.Edit(ctx, req.Editable, platform.Outgoing{
		Content: " ",
		Embeds:  []platform.Embed{keywordEmbed(rec, req.Keyword, embedEdit)},
		Rows:    []platform.Row{exitRow},
	}); err != nil {
		return err
	}

	switch ev.CustomID {
	case btnExit:
		return r.endMenu(ctx, req.Editable)
	case btnAddKeyword, btnAddContent:
		return r.add(ctx, req, ev.CustomID)
	case btnDelete:
		return r.delete(ctx, req)
	default:
		return fmt.Errorf("unknown menu action %q", ev.CustomID)
	}
}

// Preview builds the read-only keyword view, sent ephemerally by the command
// layer.
func (r *Runner) Preview(ctx context.Context, guildID, kw string) (platform.Outgoing, error) {
	rec, err := r.store.Find(ctx, guildID, kw)
	if errors.Is(err, keyword.ErrNotFound) {
		return platform.Outgoing{Content: msgKeywordMissing, Ephemeral: true}, nil
	}
	if err != nil {
		return platform.Outgoing{}, err
	}

	return platform.Outgoing{
		Content:   " ",
		Embeds:    []platform.Embed{keywordEmbed(rec, kw, embedPreview)},
		Ephemeral: true,
	}, nil
}

// add runs the add-keyword / add-image branch: ask for a reply, race it
// against the exit button, then persist whichever content arrived.
func (r *Runner) add(ctx context.Context, req Request, mode string) error {
	askRef, err := r.msgr.Send(ctx, req.Editable.ChannelID, platform.Outgoing{Content: msgAskContent})
	if err != nil {
		return err
	}

	wait := r.replies.Await(req.Editable.ChannelID, func(m platform.Message) bool {
		return m.Author.ID == req.Author.ID
	})
	col := r.cols.Collect(req.Editable, r.authorFilter(req.Author), collect.Options{Max: 1})

	res := collect.Race(ctx, wait, col)
	switch {
	case res.Component != nil:
		// exit pressed while waiting for the reply
		r.deleteQuietly(ctx, askRef)
		return r.endMenu(ctx, req.Editable)
	case res.Reply == nil:
		r.deleteQuietly(ctx, askRef)
		return ctx.Err()
	}
	resMsg := *res.Reply

	if err := r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: " "}); err != nil {
		return err
	}

	var updateErr error
	switch mode {
	case btnAddContent:
		content := resMsg.Content
		if content == "" && len(resMsg.AttachmentURLs) > 0 {
			content = resMsg.AttachmentURLs[0]
		}

		ok, err := r.gate.Confirm(ctx, gate.Request{
			Editable: askRef,
			Author:   req.Author,
			Keyword:  req.Keyword,
			ImageURL: content,
		})
		if err != nil || !ok {
			return err
		}

		img, err := r.host.Upload(ctx, content)
		if err != nil {
			logger.Warn("keyword image upload failed", "keyword", req.Keyword, "error", err)
			r.deleteQuietly(ctx, askRef)
			r.deleteQuietly(ctx, resMsg.Ref)
			return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: msgUploadFailed})
		}

		updateErr = r.store.PushResponse(ctx, req.GuildID, req.Keyword,
			keyword.Response{URL: img.URL, DeleteHash: img.DeleteHash})

	case btnAddKeyword:
		exists, err := r.store.Exists(ctx, req.GuildID, resMsg.Content)
		if err != nil {
			return err
		}
		if exists {
			r.deleteQuietly(ctx, askRef)
			return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: msgKeywordExists})
		}
		updateErr = r.store.PushKeyword(ctx, req.GuildID, req.Keyword, resMsg.Content)
	}

	notice := msgUpdated
	if updateErr != nil {
		logger.Error("keyword record update failed", "keyword", req.Keyword, "error", updateErr)
		notice = msgUpdateFailed
	}

	out := platform.Outgoing{Content: notice}
	if rec, err := r.store.Find(ctx, req.GuildID, req.Keyword); err == nil {
		out.Embeds = []platform.Embed{keywordEmbed(rec, req.Keyword, embedEdit)}
	}
	if err := r.msgr.Edit(ctx, req.Editable, out); err != nil {
		return err
	}

	r.deleteQuietly(ctx, askRef)
	r.deleteQuietly(ctx, resMsg.Ref)
	return nil
}

// delete runs the delete branch. With only the original keyword and image
// left there is nothing to pick, so the whole record goes; otherwise a
// tagged select offers the individual parts.
func (r *Runner) delete(ctx context.Context, req Request) error {
	rec, err := r.store.Find(ctx, req.GuildID, req.Keyword)
	if err != nil {
		return err
	}

	noOptions := len(rec.Keywords)+len(rec.Responses) == 2

	optionsRow := platform.Row{Buttons: []platform.Button{
		{ID: btnDeleteAll, Label: "全部刪除", Emoji: "⚠️", Style: platform.ButtonDanger},
		{ID: btnExit, Label: "✖️", Style: platform.ButtonSecondary},
	}}

	rows := []platform.Row{optionsRow}
	content := msgDeleteWholeHint
	if !noOptions {
		options := make([]platform.SelectOption, 0, len(rec.Keywords)+len(rec.Responses))
		for _, kw := range rec.Keywords {
			options = append(options, platform.SelectOption{Label: kw, Value: tagKeyword + kw})
		}
		for _, resp := range rec.Responses {
			options = append(options, platform.SelectOption{Label: resp.URL, Value: tagImage + resp.URL})
		}
		rows = append(rows, platform.Row{Select: &platform.Select{ID: selectList, Options: options}})
		content = msgPickTarget
	}

	if err := r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: content, Rows: rows}); err != nil {
		return err
	}

	ev, ok := r.awaitPress(ctx, req)
	if !ok {
		return ctx.Err()
	}

	var deletePart string
	showPreview := true
	lookup := req.Keyword

	switch {
	case ev.CustomID == selectList && len(ev.Values) > 0:
		value := ev.Values[0]
		switch {
		case strings.HasPrefix(value, tagImage):
			url := strings.TrimPrefix(value, tagImage)
			deletePart = fmt.Sprintf("圖片 `%s` ", url)
			r.revokeImage(ctx, rec, url)
			if err := r.store.PullResponse(ctx, req.GuildID, req.Keyword, url); err != nil {
				return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: msgUpdateFailed})
			}

		case strings.HasPrefix(value, tagKeyword):
			kw := strings.TrimPrefix(value, tagKeyword)
			deletePart = fmt.Sprintf("觸發詞 `%s`", kw)
			if err := r.store.PullKeyword(ctx, req.GuildID, req.Keyword, kw); err != nil {
				return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: msgUpdateFailed})
			}
			lookup = remainingKeyword(rec, kw)

		default:
			return fmt.Errorf("untagged delete value %q", value)
		}

	case ev.CustomID == btnDeleteAll:
		showPreview = false
		deletePart = fmt.Sprintf("觸發詞 `%s` 整體", req.Keyword)
		for _, resp := range rec.Responses {
			if err := r.host.Delete(ctx, resp.DeleteHash); err != nil {
				logger.Warn("hosted image revoke failed", "url", resp.URL, "error", err)
			}
		}
		if err := r.store.Delete(ctx, req.GuildID, req.Keyword); err != nil {
			return r.msgr.Edit(ctx, req.Editable, platform.Outgoing{Content: msgUpdateFailed})
		}

	case ev.CustomID == btnExit:
		return r.endMenu(ctx, req.Editable)

	default:
		return fmt.Errorf("unknown delete action %q", ev.CustomID)
	}

	out := platform.Outgoing{Content: fmt.Sprintf("\\✔️ | %s已移除。", deletePart)}
	if showPreview {
		if rec, err := r.store.Find(ctx, req.GuildID, lookup); err == nil {
			out.Embeds = []platform.Embed{keywordEmbed(rec, req.Keyword, embedEdit)}
		}
	}
	return r.msgr.Edit(ctx, req.Editable, out)
}

// awaitPress waits for the author's next button press or select choice on
// the menu message.
func (r *Runner) awaitPress(ctx context.Context, req Request) (platform.ComponentEvent, bool) {
	col := r.cols.Collect(req.Editable, r.authorFilter(req.Author), collect.Options{Max: 1})
	ev, _, ok := col.Next(ctx)
	return ev, ok
}

func (r *Runner) authorFilter(author platform.User) collect.Filter {
	return func(ev platform.ComponentEvent) bool {
		return ev.User.ID == author.ID
	}
}

func (r *Runner) endMenu(ctx context.Context, ref platform.MessageRef) error {
	return r.msgr.Edit(ctx, ref, platform.Outgoing{Content: msgMenuEnded})
}

func (r *Runner) deleteQuietly(ctx context.Context, ref platform.MessageRef) {
	if err := r.msgr.Delete(ctx, ref); err != nil {
		logger.Debug("menu cleanup delete failed", "channel", ref.ChannelID, "error", err)
	}
}

// revokeImage deletes the hosted copy matching url, using the delete hash
// from the record loaded at the start of the flow.
func (r *Runner) revokeImage(ctx context.Context, rec *keyword.Record, url string) {
	for _, resp := range rec.Responses {
		if resp.URL == url {
			if err := r.host.Delete(ctx, resp.DeleteHash); err != nil {
				logger.Warn("hosted image revoke failed", "url", url, "error", err)
			}
			return
		}
	}
}

// remainingKeyword picks a keyword that still addresses the record after one
// keyword was pulled.
func remainingKeyword(rec *keyword.Record, deleted string) string {
	for _, kw := range rec.Keywords {
		if kw != deleted {
			return kw
		}
	}
	return deleted
}
