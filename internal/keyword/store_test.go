package keyword

import (
	"context"
	"errors"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) *Record {
	t.Helper()

	rec := &Record{
		GuildID:   "g1",
		Keywords:  []string{"hello"},
		Responses: []Response{{URL: "https://i.example/a.png", DeleteHash: "h-a"}},
		CreatedBy: "u1",
	}
	if err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

func TestCreateAndFind(t *testing.T) {
	s := testStore(t)
	seed(t, s)

	rec, err := s.Find(context.Background(), "g1", "hello")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.CreatedBy != "u1" || len(rec.Keywords) != 1 || len(rec.Responses) != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Responses[0].DeleteHash != "h-a" {
		t.Errorf("delete hash not round-tripped: %q", rec.Responses[0].DeleteHash)
	}
}

func TestCreateRejectsDuplicateKeyword(t *testing.T) {
	s := testStore(t)
	seed(t, s)

	err := s.Create(context.Background(), &Record{
		GuildID:   "g1",
		Keywords:  []string{"hello"},
		Responses: []Response{{URL: "https://i.example/b.png"}},
		CreatedBy: "u2",
	})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("want ErrExists, got %v", err)
	}
}

func TestCreateAllowsSameKeywordInOtherGuild(t *testing.T) {
	s := testStore(t)
	seed(t, s)

	err := s.Create(context.Background(), &Record{
		GuildID:   "g2",
		Keywords:  []string{"hello"},
		Responses: []Response{{URL: "https://i.example/b.png"}},
		CreatedBy: "u2",
	})
	if err != nil {
		t.Fatalf("Create in other guild: %v", err)
	}
}

func TestPushAndPullKeyword(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	if err := s.PushKeyword(ctx, "g1", "hello", "hi"); err != nil {
		t.Fatalf("PushKeyword: %v", err)
	}

	// The new keyword now addresses the same record.
	rec, err := s.Find(ctx, "g1", "hi")
	if err != nil {
		t.Fatalf("Find by pushed keyword: %v", err)
	}
	if len(rec.Keywords) != 2 {
		t.Fatalf("want 2 keywords, got %v", rec.Keywords)
	}

	if err := s.PullKeyword(ctx, "g1", "hi", "hello"); err != nil {
		t.Fatalf("PullKeyword: %v", err)
	}
	rec, err = s.Find(ctx, "g1", "hi")
	if err != nil {
		t.Fatalf("Find after pull: %v", err)
	}
	if len(rec.Keywords) != 1 || rec.Keywords[0] != "hi" {
		t.Fatalf("want [hi], got %v", rec.Keywords)
	}

	if _, err := s.Find(ctx, "g1", "hello"); !errors.Is(err, ErrNotFound) {
		t.Errorf("removed keyword still matches: %v", err)
	}
}

func TestPushAndPullResponse(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	err := s.PushResponse(ctx, "g1", "hello",
		Response{URL: "https://i.example/b.png", DeleteHash: "h-b"})
	if err != nil {
		t.Fatalf("PushResponse: %v", err)
	}

	rec, err := s.Find(ctx, "g1", "hello")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(rec.Responses) != 2 {
		t.Fatalf("want 2 responses, got %+v", rec.Responses)
	}
	if rec.Responses[1].DeleteHash != "h-b" {
		t.Errorf("pushed response lost its delete hash: %+v", rec.Responses[1])
	}

	if err := s.PullResponse(ctx, "g1", "hello", "https://i.example/a.png"); err != nil {
		t.Fatalf("PullResponse: %v", err)
	}
	rec, err = s.Find(ctx, "g1", "hello")
	if err != nil {
		t.Fatalf("Find after pull: %v", err)
	}
	if len(rec.Responses) != 1 || rec.Responses[0].URL != "https://i.example/b.png" {
		t.Fatalf("want only b.png left, got %+v", rec.Responses)
	}
}

func TestDeleteRecord(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	if err := s.Delete(ctx, "g1", "hello"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Find(ctx, "g1", "hello"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record survived delete: %v", err)
	}
	if err := s.Delete(ctx, "g1", "hello"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should report ErrNotFound, got %v", err)
	}
}

func TestMatchIncrementsCount(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	rec, err := s.Match(ctx, "g1", "hello")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if rec.Count != 1 {
		t.Fatalf("want count 1, got %d", rec.Count)
	}

	rec, err = s.Match(ctx, "g1", "hello")
	if err != nil {
		t.Fatalf("Match again: %v", err)
	}
	if rec.Count != 2 {
		t.Fatalf("want count 2, got %d", rec.Count)
	}

	if _, err := s.Match(ctx, "g1", "no such keyword"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound for miss, got %v", err)
	}
}

func TestSearchPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, kw := range []string{"apple", "apricot", "banana"} {
		err := s.Create(ctx, &Record{
			GuildID:   "g1",
			Keywords:  []string{kw},
			Responses: []Response{{URL: "https://i.example/" + kw + ".png"}},
			CreatedBy: "u1",
		})
		if err != nil {
			t.Fatalf("Create %q: %v", kw, err)
		}
	}

	got, err := s.SearchPrefix(ctx, "g1", "ap", 8)
	if err != nil {
		t.Fatalf("SearchPrefix: %v", err)
	}
	if len(got) != 2 || got[0] != "apple" || got[1] != "apricot" {
		t.Fatalf("want [apple apricot], got %v", got)
	}
}
