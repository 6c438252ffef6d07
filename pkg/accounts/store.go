// Package accounts holds the in-memory account registry: credentialed
// provider accounts with health status, cooldown bookkeeping, and ordered
// candidate lists for the fallback loop. The store owns all locking, so
// concurrent requests can rotate accounts safely.
package accounts

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gatehouse-hq/gatehouse/pkg/fallback"
)

// Status is the health state of one account.
type Status string

const (
	// StatusActive means the account is usable.
	StatusActive Status = "active"

	// StatusCoolingDown means the account hit a transient or auth failure
	// and is parked until its cooldown expires.
	StatusCoolingDown Status = "cooling-down"

	// StatusExhausted means the account's quota is spent or it was rejected
	// outright. Only the sweeper's operator-facing reset restores it.
	StatusExhausted Status = "exhausted"
)

// Account is one credentialed upstream account.
type Account struct {
	// ID uniquely identifies the account
	ID string

	// Provider is the provider the credential belongs to
	Provider string

	// Credential is the live credential material
	Credential string

	// Status is the current health state
	Status Status

	// CooldownUntil is when a cooling-down account becomes usable again
	CooldownUntil time.Time
}

// DuplicateAccountError reports a second registration of the same account ID.
type DuplicateAccountError struct {
	// ID is the duplicated account ID
	ID string
}

// Error implements the error interface.
func (e *DuplicateAccountError) Error() string {
	return fmt.Sprintf("account %q already registered", e.ID)
}

// Store is the in-memory account registry. It implements
// fallback.AccountStore.
type Store struct {
	mu sync.RWMutex

	// accounts maps account IDs to their current state
	accounts map[string]*Account

	// order holds per-provider account IDs in registration order; candidate
	// lists preserve this order
	order map[string][]string

	// cooldown is how long a cooling-down account stays parked
	cooldown time.Duration

	logger *slog.Logger
}

// DefaultCooldown is applied when no cooldown duration is configured.
const DefaultCooldown = 5 * time.Minute

// NewStore creates an empty store. A non-positive cooldown falls back to
// DefaultCooldown.
func NewStore(cooldown time.Duration) *Store {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Store{
		accounts: make(map[string]*Account),
		order:    make(map[string][]string),
		cooldown: cooldown,
		logger:   slog.Default().With("component", "accounts"),
	}
}

// Add registers an account. Accounts start active regardless of the Status
// field on the argument.
func (s *Store) Add(a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return &DuplicateAccountError{ID: a.ID}
	}

	a.Status = StatusActive
	a.CooldownUntil = time.Time{}
	s.accounts[a.ID] = &a
	s.order[a.Provider] = append(s.order[a.Provider], a.ID)
	return nil
}

// CandidatesFor returns the usable accounts for a provider, in registration
// order. Cooldowns that have lapsed are cleared on the way through, so a
// parked account becomes usable again without waiting for the sweeper. The
// model argument is accepted for the fallback.AccountStore contract; accounts
// are provider-scoped.
func (s *Store) CandidatesFor(provider, model string) []fallback.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []fallback.Account
	for _, id := range s.order[provider] {
		a := s.accounts[id]
		if a.Status == StatusCoolingDown && now.After(a.CooldownUntil) {
			a.Status = StatusActive
			a.CooldownUntil = time.Time{}
		}
		if a.Status != StatusActive {
			continue
		}
		out = append(out, fallback.Account{
			ID:         a.ID,
			Provider:   a.Provider,
			Credential: a.Credential,
		})
	}
	return out
}

// MarkCoolingDown parks an account until its cooldown lapses.
func (s *Store) MarkCoolingDown(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.Status == StatusExhausted {
		return
	}
	a.Status = StatusCoolingDown
	a.CooldownUntil = time.Now().Add(s.cooldown)
	s.logger.Debug("account cooling down",
		"account", accountID, "until", a.CooldownUntil)
}

// MarkExhausted removes an account from rotation until explicitly reset.
func (s *Store) MarkExhausted(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return
	}
	a.Status = StatusExhausted
	a.CooldownUntil = time.Time{}
	s.logger.Info("account exhausted", "account", accountID, "provider", a.Provider)
}

// MarkHealthy restores an account to active after a successful execution.
// Exhausted accounts stay exhausted; a success on an exhausted account cannot
// happen through the candidate path and is ignored.
func (s *Store) MarkHealthy(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.Status == StatusExhausted {
		return
	}
	a.Status = StatusActive
	a.CooldownUntil = time.Time{}
}

// UpdateCredential replaces the stored credential after a refresh.
func (s *Store) UpdateCredential(accountID, credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[accountID]; ok {
		a.Credential = credential
	}
}

// Reset restores an exhausted or cooling-down account to active. Used by the
// operator path and the sweeper's quota-window reset.
func (s *Store) Reset(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[accountID]; ok {
		a.Status = StatusActive
		a.CooldownUntil = time.Time{}
	}
}

// restoreExpired clears every lapsed cooldown. Returns how many accounts
// were restored.
func (s *Store) restoreExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	restored := 0
	for _, a := range s.accounts {
		if a.Status == StatusCoolingDown && now.After(a.CooldownUntil) {
			a.Status = StatusActive
			a.CooldownUntil = time.Time{}
			restored++
		}
	}
	return restored
}

// Snapshot returns a copy of every account's current state, for diagnostics.
func (s *Store) Snapshot() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.accounts))
	for _, providerIDs := range s.order {
		for _, id := range providerIDs {
			out = append(out, *s.accounts[id])
		}
	}
	return out
}
