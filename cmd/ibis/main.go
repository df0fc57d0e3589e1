package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/ibis-bot/ibis/internal/alerts"
	"github.com/ibis-bot/ibis/internal/antiscam"
	"github.com/ibis-bot/ibis/internal/api"
	"github.com/ibis-bot/ibis/internal/bot"
	"github.com/ibis-bot/ibis/internal/collect"
	"github.com/ibis-bot/ibis/internal/commands"
	"github.com/ibis-bot/ibis/internal/config"
	"github.com/ibis-bot/ibis/internal/gate"
	"github.com/ibis-bot/ibis/internal/imagehost"
	"github.com/ibis-bot/ibis/internal/keyword"
	"github.com/ibis-bot/ibis/internal/logger"
	"github.com/ibis-bot/ibis/internal/mcstatus"
	"github.com/ibis-bot/ibis/internal/menu"
	"github.com/ibis-bot/ibis/internal/platform"
	"github.com/ibis-bot/ibis/internal/repair"
	"github.com/ibis-bot/ibis/internal/scrape"
)

func init() {
	godotenv.Load()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	store, err := keyword.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open keyword store", "error", err)
	}
	defer store.Close()

	host := pickImageHost(cfg)

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		logger.Fatal("failed to create session", "error", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	adapter := bot.NewAdapter(session)
	cols := collect.NewRegistry()
	replies := collect.NewReplies()

	confirm := gate.New(adapter, cols)
	runner := menu.NewRunner(adapter, store, host, confirm, cols, replies)

	var tweets repair.TweetSource
	if cfg.Scraper.Enabled {
		scraper, err := scrape.NewTweetScraper(cfg.Scraper.BrowserPath)
		if err != nil {
			logger.Error("tweet scraper unavailable", "error", err)
		} else {
			tweets = scraper
			defer scraper.Close()
		}
	}
	meta := scrape.NewMetadataFetcher()
	queue := repair.NewQueue(repair.DefaultQueueSize)
	fixer := repair.NewFixer(adapter, cols, queue, tweets, meta)

	scam := antiscam.New(adapter, adapter, cfg.AntiScam.FeedURL, cfg.AntiScam.CustomFile)
	if err := scam.Refresh(context.Background()); err != nil {
		logger.Warn("initial phishing feed fetch failed", "error", err)
	}

	registry := commands.Default()
	deps := &commands.Deps{
		Registry:  registry,
		Msgr:      adapter,
		Cols:      cols,
		Menu:      runner,
		Keywords:  store,
		Shortener: commands.NewShortener(cfg.ReurlToken),
		Sauce:     commands.NewSauceClient(cfg.SauceToken),
		OwnerID:   cfg.OwnerID,
		Prefix:    cfg.Prefix,
		StartedAt: time.Now(),
	}

	var alerter *alerts.Alerter
	routerOpts := []bot.RouterOption{}
	if cfg.OwnerID != "" {
		alerter = ownerAlerter(session, adapter, cfg.OwnerID)
		routerOpts = append(routerOpts, bot.WithAlerter(alerter))
		logger.Info("owner alerting enabled", "owner", cfg.OwnerID)
	}

	router := bot.NewRouter(session, adapter, registry, deps, cols, replies, fixer, scam, routerOpts...)

	if err := session.Open(); err != nil {
		logger.Fatal("failed to open gateway", "error", err)
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go router.RotateStatus(ctx, time.Minute)

	sched := cron.New()
	sched.Schedule(cron.Every(6*time.Hour), cron.FuncJob(func() {
		refreshCtx, done := context.WithTimeout(ctx, time.Minute)
		defer done()
		if err := scam.Refresh(refreshCtx); err != nil {
			logger.Error("phishing feed refresh failed", "error", err)
			if alerter != nil {
				alerter.Warn("antiscam", "phishing feed refresh failed", err)
			}
		}
	}))

	if cfg.Mcsv.Enabled {
		watcher := mcstatus.NewWatcher(
			mcstatus.NewClient(cfg.Mcsv.Host),
			adapter,
			adapter,
			cfg.Mcsv.ThreadID,
			session.State.User.ID,
		)
		if err := watcher.Init(ctx); err != nil {
			logger.Warn("status watcher init failed", "error", err)
		}
		sched.Schedule(cron.Every(5*time.Minute), cron.FuncJob(func() {
			pollCtx, done := context.WithTimeout(ctx, time.Minute)
			defer done()
			if err := watcher.Poll(pollCtx); err != nil {
				logger.Error("server status poll failed", "error", err)
			}
		}))
		logger.Info("server status watcher enabled", "host", cfg.Mcsv.Host)
	}
	sched.Start()
	defer sched.Stop()

	if cfg.API.Enabled {
		server := api.NewServer(cfg.API.Addr, adapter)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("api server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			server.Shutdown(shutdownCtx)
		}()
		logger.Info("changelog api enabled", "addr", cfg.API.Addr)
	}

	logger.Info("ibis started", "prefix", cfg.Prefix, "storage", cfg.Storage.Enabled, "mcsv", cfg.Mcsv.Enabled)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
}

// pickImageHost prefers the self-hosted bucket when its credentials are
// configured and reachable, falling back to imgur.
func pickImageHost(cfg *config.Config) imagehost.Host {
	if cfg.Storage.Enabled {
		mc, err := imagehost.NewMinio(imagehost.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			logger.Error("storage client failed, falling back to imgur", "error", err)
		} else {
			initCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := mc.Init(initCtx); err != nil {
				logger.Error("storage init failed, falling back to imgur", "error", err)
			} else {
				logger.Info("image host: minio", "endpoint", cfg.Storage.Endpoint)
				return mc
			}
		}
	}
	logger.Info("image host: imgur")
	return imagehost.NewImgur(cfg.Imgur.ClientID)
}

// ownerAlerter wires failure alerts to the owner's DM channel with an hourly
// per-failure cooldown.
func ownerAlerter(session *discordgo.Session, msgr platform.Messenger, ownerID string) *alerts.Alerter {
	return alerts.New(func(message string) {
		ch, err := session.UserChannelCreate(ownerID)
		if err != nil {
			logger.Error("owner DM channel failed", "error", err)
			return
		}
		if _, err := msgr.Send(context.Background(), ch.ID, platform.Outgoing{Content: message}); err != nil {
			logger.Error("owner alert send failed", "error", err)
		}
	}, time.Hour)
}
