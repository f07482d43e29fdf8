package store

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionstream/internal/errors"
	"optionstream/internal/models"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func summary(symbol string, computedAt time.Time) models.Summary {
	pcr := 1.2
	return models.Summary{
		Symbol:        symbol,
		Expiry:        time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC),
		SpotPrice:     24800,
		ATMStrike:     24800,
		MaxPainStrike: 24750,
		PCROI:         &pcr,
		TotalCallOI:   1_000_000,
		TotalPutOI:    1_200_000,
		ComputedAt:    computedAt,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.LoadSession(ctx); !stderrors.Is(err, errors.ErrNotAuthenticated) {
		t.Fatalf("empty store err = %v, want ErrNotAuthenticated", err)
	}

	want := Session{
		AccessToken: "tok-abc",
		UserID:      "AB1234",
		ExpiresAt:   time.Now().Add(12 * time.Hour).UTC(),
	}
	if err := s.SaveSession(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != want.AccessToken || got.UserID != want.UserID {
		t.Errorf("session = %+v, want %+v", got, want)
	}

	// Upsert replaces, never accumulates.
	want.AccessToken = "tok-def"
	if err := s.SaveSession(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err = s.LoadSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "tok-def" {
		t.Errorf("token = %q after upsert, want tok-def", got.AccessToken)
	}

	if err := s.ClearSession(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadSession(ctx); !stderrors.Is(err, errors.ErrNotAuthenticated) {
		t.Errorf("cleared store err = %v, want ErrNotAuthenticated", err)
	}
}

func TestExpiredSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	session := Session{
		AccessToken: "tok-old",
		ExpiresAt:   time.Now().Add(-time.Hour).UTC(),
	}
	if err := s.SaveSession(ctx, session); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadSession(ctx); !stderrors.Is(err, errors.ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}

func TestSnapshotJournal(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	batch := []models.Summary{
		summary("NIFTY", base),
		summary("NIFTY", base.Add(10*time.Second)),
		summary("BANKNIFTY", base.Add(5*time.Second)),
	}
	if err := s.SaveSnapshots(ctx, batch); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSnapshots(ctx, SnapshotFilter{Symbol: "NIFTY"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("NIFTY snapshots = %d, want 2", len(got))
	}
	if !got[0].ComputedAt.After(got[1].ComputedAt) {
		t.Error("snapshots not ordered newest first")
	}
	if got[0].PCROI == nil || *got[0].PCROI != 1.2 {
		t.Errorf("PCROI = %v, want 1.2", got[0].PCROI)
	}

	latest, err := s.GetLatestSnapshot(ctx, "BANKNIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Symbol != "BANKNIFTY" {
		t.Errorf("latest symbol = %q", latest.Symbol)
	}

	if _, err := s.GetLatestSnapshot(ctx, "RELIANCE"); err == nil {
		t.Error("expected error for symbol with no entries")
	}
}

func TestSnapshotNilPCRPersists(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sm := summary("NIFTY", time.Now().UTC())
	sm.PCROI = nil
	sm.PCRVolume = nil
	if err := s.SaveSnapshots(ctx, []models.Summary{sm}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetLatestSnapshot(ctx, "NIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if got.PCROI != nil || got.PCRVolume != nil {
		t.Errorf("PCR = %v/%v, want nil/nil", got.PCROI, got.PCRVolume)
	}
}

func TestPruneSnapshots(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	err := s.SaveSnapshots(ctx, []models.Summary{
		summary("NIFTY", base),
		summary("NIFTY", base.AddDate(0, 0, 20)),
	})
	if err != nil {
		t.Fatal(err)
	}

	removed, err := s.PruneSnapshots(ctx, base.AddDate(0, 0, 10))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	left, err := s.GetSnapshots(ctx, SnapshotFilter{Symbol: "NIFTY"})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Errorf("remaining = %d, want 1", len(left))
	}
}

func TestJournalBatchesWrites(t *testing.T) {
	s := testStore(t)
	j := NewJournal(s, 2, zerolog.Nop())
	now := time.Now().UTC()

	view := &models.OptionChainView{
		Symbol:     "NIFTY",
		Expiry:     time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC),
		SpotPrice:  24800,
		ComputedAt: now,
	}

	// One record stays buffered until the batch fills or flushes.
	j.Record(view)
	got, err := s.GetSnapshots(context.Background(), SnapshotFilter{Symbol: "NIFTY"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("premature write: %d rows", len(got))
	}

	j.Record(view)
	got, err = s.GetSnapshots(context.Background(), SnapshotFilter{Symbol: "NIFTY"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("rows after full batch = %d, want 2", len(got))
	}

	j.Record(view)
	j.Flush()
	got, err = s.GetSnapshots(context.Background(), SnapshotFilter{Symbol: "NIFTY"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("rows after flush = %d, want 3", len(got))
	}
}
