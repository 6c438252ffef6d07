package accounts

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newPopulatedStore(t *testing.T, cooldown time.Duration) *Store {
	t.Helper()
	s := NewStore(cooldown)
	for _, a := range []Account{
		{ID: "oa-1", Provider: "openai", Credential: "key-oa-1"},
		{ID: "oa-2", Provider: "openai", Credential: "key-oa-2"},
		{ID: "an-1", Provider: "anthropic", Credential: "key-an-1"},
	} {
		if err := s.Add(a); err != nil {
			t.Fatalf("Add(%s) failed: %v", a.ID, err)
		}
	}
	return s
}

func candidateIDs(s *Store, provider string) []string {
	var ids []string
	for _, c := range s.CandidatesFor(provider, "any-model") {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestCandidatesFor_OrderAndProviderScoping(t *testing.T) {
	s := newPopulatedStore(t, time.Minute)

	ids := candidateIDs(s, "openai")
	if len(ids) != 2 || ids[0] != "oa-1" || ids[1] != "oa-2" {
		t.Errorf("openai candidates = %v, want [oa-1 oa-2] in registration order", ids)
	}
	if ids := candidateIDs(s, "anthropic"); len(ids) != 1 || ids[0] != "an-1" {
		t.Errorf("anthropic candidates = %v, want [an-1]", ids)
	}
	if ids := candidateIDs(s, "unknown"); len(ids) != 0 {
		t.Errorf("unknown provider candidates = %v, want none", ids)
	}
}

func TestAdd_RejectsDuplicateID(t *testing.T) {
	s := newPopulatedStore(t, time.Minute)

	err := s.Add(Account{ID: "oa-1", Provider: "openai"})
	var dup *DuplicateAccountError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want *DuplicateAccountError", err)
	}
}

func TestMarkCoolingDown_RemovesFromRotation(t *testing.T) {
	s := newPopulatedStore(t, time.Minute)

	s.MarkCoolingDown("oa-1")
	if ids := candidateIDs(s, "openai"); len(ids) != 1 || ids[0] != "oa-2" {
		t.Errorf("candidates = %v, want [oa-2]", ids)
	}
}

func TestCooldown_LapsesLazilyOnRead(t *testing.T) {
	s := newPopulatedStore(t, 10*time.Millisecond)

	s.MarkCoolingDown("oa-1")
	if ids := candidateIDs(s, "openai"); len(ids) != 1 {
		t.Fatalf("candidates during cooldown = %v", ids)
	}

	time.Sleep(20 * time.Millisecond)
	if ids := candidateIDs(s, "openai"); len(ids) != 2 {
		t.Errorf("candidates after cooldown = %v, want both restored", ids)
	}
}

func TestMarkExhausted_IsSticky(t *testing.T) {
	s := newPopulatedStore(t, time.Millisecond)

	s.MarkExhausted("oa-1")
	time.Sleep(5 * time.Millisecond)
	if ids := candidateIDs(s, "openai"); len(ids) != 1 || ids[0] != "oa-2" {
		t.Errorf("candidates = %v, want exhausted oa-1 excluded", ids)
	}

	// Neither MarkHealthy nor a cooldown transition revives it.
	s.MarkHealthy("oa-1")
	s.MarkCoolingDown("oa-1")
	if ids := candidateIDs(s, "openai"); len(ids) != 1 {
		t.Errorf("candidates = %v, exhausted account re-entered rotation", ids)
	}

	// Reset does.
	s.Reset("oa-1")
	if ids := candidateIDs(s, "openai"); len(ids) != 2 {
		t.Errorf("candidates after Reset = %v, want both", ids)
	}
}

func TestMarkHealthy_ClearsCooldown(t *testing.T) {
	s := newPopulatedStore(t, time.Hour)

	s.MarkCoolingDown("oa-1")
	s.MarkHealthy("oa-1")
	if ids := candidateIDs(s, "openai"); len(ids) != 2 {
		t.Errorf("candidates = %v, want cooldown cleared", ids)
	}
}

func TestUpdateCredential(t *testing.T) {
	s := newPopulatedStore(t, time.Minute)

	s.UpdateCredential("oa-1", "rotated-key")
	for _, c := range s.CandidatesFor("openai", "m") {
		if c.ID == "oa-1" && c.Credential != "rotated-key" {
			t.Errorf("credential = %q, want rotated-key", c.Credential)
		}
	}
}

func TestRestoreExpired(t *testing.T) {
	s := newPopulatedStore(t, 5*time.Millisecond)

	s.MarkCoolingDown("oa-1")
	s.MarkCoolingDown("an-1")
	time.Sleep(10 * time.Millisecond)

	if restored := s.restoreExpired(); restored != 2 {
		t.Errorf("restored = %d, want 2", restored)
	}
	for _, a := range s.Snapshot() {
		if a.Status != StatusActive {
			t.Errorf("account %s status = %s after restore", a.ID, a.Status)
		}
	}
}

func TestStore_ConcurrentMarking(t *testing.T) {
	s := newPopulatedStore(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				s.MarkCoolingDown("oa-1")
			case 1:
				s.MarkHealthy("oa-1")
			case 2:
				s.CandidatesFor("openai", "m")
			case 3:
				s.UpdateCredential("oa-2", "k")
			}
		}(i)
	}
	wg.Wait()

	// The store must stay internally consistent whatever interleaving won.
	if got := len(s.Snapshot()); got != 3 {
		t.Errorf("snapshot size = %d, want 3", got)
	}
}

func TestSweeper_RestoresOnSchedule(t *testing.T) {
	s := newPopulatedStore(t, time.Millisecond)
	sw := NewSweeper(s, "@every 1s")
	if err := sw.Start(); err == nil {
		defer sw.Stop()
	}
	// Scheduling detail aside, the sweep itself must restore lapsed accounts.
	s.MarkCoolingDown("oa-1")
	time.Sleep(5 * time.Millisecond)
	sw.sweep()
	if ids := candidateIDs(s, "openai"); len(ids) != 2 {
		t.Errorf("candidates after sweep = %v, want both", ids)
	}
}

func TestNewSweeper_RejectsBadSchedule(t *testing.T) {
	s := NewStore(0)
	sw := NewSweeper(s, "not a schedule")
	if err := sw.Start(); err == nil {
		sw.Stop()
		t.Fatal("expected error for invalid schedule")
	}
}
