package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"vibecheck/internal/domain"
	"vibecheck/internal/storage/sqlite"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("vibeadm %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestSeedThenReconcile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)

	out := run(t, "seed")
	if !strings.Contains(out, "Added 12 businesses") || !strings.Contains(out, "The Krusty Krab (Restaurant)") {
		t.Fatalf("unexpected seed output:\n%s", out)
	}
	out = run(t, "seed")
	if !strings.Contains(out, "already contains 12 businesses") {
		t.Fatalf("expected refusal, got:\n%s", out)
	}

	// corrupt one aggregate behind the engine's back
	db, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo := sqlite.New(db)
	score := 66.0
	if _, err := repo.InsertReview(context.Background(), domain.Review{BusinessID: 4, UserID: 1, Content: "imported", VibeScore: &score}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	out = run(t, "reconcile", "--workers", "3")
	if !strings.Contains(out, "Checked 12 businesses: 1 drifted, 0 failed.") || !strings.Contains(out, "business 4: 0.00/0 -> 66.00/1") {
		t.Fatalf("unexpected reconcile output:\n%s", out)
	}
}
