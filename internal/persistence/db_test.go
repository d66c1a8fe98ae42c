package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/ascension/internal/ascension"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ascension.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAscension_LoadMissing(t *testing.T) {
	db := openTestDB(t)
	st, ok, err := db.LoadAscension(context.Background(), "islands/north")
	if err != nil {
		t.Fatalf("LoadAscension: %v", err)
	}
	if ok {
		t.Fatalf("expected no stored state")
	}
	if st != ascension.NewState() {
		t.Fatalf("expected zero state, got %+v", st)
	}
}

func TestAscension_SaveLoadReplace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := ascension.State{Occident: 120, Orient: 40, Beggars: 12, BeggarLvl: 2, Envoys: 6, EnvoyLvl: 1}
	if err := db.SaveAscension(ctx, "isle-1", first); err != nil {
		t.Fatalf("SaveAscension: %v", err)
	}
	got, ok, err := db.LoadAscension(ctx, "isle-1")
	if err != nil || !ok {
		t.Fatalf("LoadAscension: ok=%v err=%v", ok, err)
	}
	if got != first {
		t.Fatalf("got %+v, want %+v", got, first)
	}

	second := first
	second.Occident = 300
	if err := db.SaveAscension(ctx, "isle-1", second); err != nil {
		t.Fatalf("SaveAscension: %v", err)
	}
	got, _, err = db.LoadAscension(ctx, "isle-1")
	if err != nil {
		t.Fatalf("LoadAscension: %v", err)
	}
	if got.Occident != 300 {
		t.Fatalf("occident = %v, want 300", got.Occident)
	}

	// Other islands are untouched.
	if _, ok, _ := db.LoadAscension(ctx, "isle-2"); ok {
		t.Fatalf("isle-2 should have no state")
	}
}

func TestGames_CreateAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	games, err := db.ListGames(ctx)
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games) != 0 {
		t.Fatalf("expected empty catalog, got %d", len(games))
	}

	g, err := db.CreateGame(ctx, Game{Name: "Sunken Isles", Owner: "spoofed"}, "user-7")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if g.Owner != "user-7" {
		t.Fatalf("owner = %q, want user-7", g.Owner)
	}
	id, err := uuid.Parse(g.ID)
	if err != nil {
		t.Fatalf("id %q: %v", g.ID, err)
	}
	if id.Version() != 7 {
		t.Fatalf("id version = %d, want 7", id.Version())
	}

	if _, err := db.CreateGame(ctx, Game{Name: "Second"}, "user-8"); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	games, err = db.ListGames(ctx)
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("len = %d, want 2", len(games))
	}
	if games[0] != g {
		t.Fatalf("first game = %+v, want %+v", games[0], g)
	}
}
