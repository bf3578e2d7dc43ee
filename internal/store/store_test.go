package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/papaganelli/visitlog/pkg/leads"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func profile(addr string, score float64, last time.Time) leads.Profile {
	return leads.Profile{
		Address:        addr,
		SessionID:      "s-" + addr,
		FirstVisit:     last.Add(-time.Hour),
		LastVisit:      last,
		TotalVisits:    2,
		PagesVisited:   []string{"/services", "/contact"},
		LeadScore:      score,
		FoldedSessions: []string{"s-" + addr},
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 25, 14, 0, 0, 0, time.UTC)

	if err := s.Save(ctx, []leads.Profile{profile("203.0.113.5", 0.4, now), profile("198.51.100.7", 0.8, now), {}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	updated := profile("203.0.113.5", 0.9, now.Add(time.Hour))
	updated.TotalVisits = 3
	if err := s.Save(ctx, []leads.Profile{updated}); err != nil {
		t.Fatalf("Save() upsert error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(got))
	}
	if got[0].Address != "203.0.113.5" || got[0].TotalVisits != 3 {
		t.Errorf("highest score first after upsert, got %+v", got[0])
	}
	if !got[0].LastVisit.Equal(now.Add(time.Hour)) || len(got[0].FoldedSessions) != 1 {
		t.Errorf("profile did not round-trip: %+v", got[0])
	}
}

func TestGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 25, 14, 0, 0, 0, time.UTC)
	if err := s.Save(ctx, []leads.Profile{profile("203.0.113.5", 0.4, now)}); err != nil {
		t.Fatal(err)
	}

	p, err := s.Get(ctx, "203.0.113.5")
	if err != nil || p.LeadScore != 0.4 {
		t.Errorf("Get() = %+v, %v", p, err)
	}
	if _, err := s.Get(ctx, "10.0.0.1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 25, 14, 0, 0, 0, time.UTC)
	if err := s.Save(ctx, []leads.Profile{
		profile("203.0.113.5", 0.4, now.AddDate(0, -2, 0)),
		profile("198.51.100.7", 0.8, now),
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.Delete(ctx, now.AddDate(0, -1, 0))
	if err != nil || n != 1 {
		t.Fatalf("Delete() = %d, %v", n, err)
	}
	if _, err := s.Get(ctx, "203.0.113.5"); !errors.Is(err, ErrNotFound) {
		t.Error("stale profile should be gone")
	}
}

func TestLoadIntoLeadStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")
	ctx := context.Background()

	ls := leads.NewStore(leads.DefaultPolicy(), time.UTC)
	u := leads.SessionUpdate{
		Address:      "203.0.113.5",
		SessionID:    "abc",
		Start:        time.Date(2025, 7, 25, 14, 0, 0, 0, time.UTC),
		End:          time.Date(2025, 7, 25, 14, 3, 0, 0, time.UTC),
		Pages:        []string{"/services"},
		TimeOnSiteMs: 60000,
	}
	if _, _, err := ls.Update(u); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, ls.Profiles()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	restored := leads.NewStore(leads.DefaultPolicy(), time.UTC)
	n, err := reopened.LoadInto(ctx, restored)
	if err != nil || n != 1 {
		t.Fatalf("LoadInto() = %d, %v", n, err)
	}
	if _, applied, _ := restored.Update(u); applied {
		t.Error("a session folded before the restart must not be folded again")
	}
}
