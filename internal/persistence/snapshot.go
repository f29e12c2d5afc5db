// Package persistence implements best-effort storage of in-progress checkout
// data so a returning shopper can pick up where they left off. Storage I/O is
// a UX enhancement, never correctness-critical: every failure is logged and
// swallowed, and checkout proceeds normally with persistence unavailable.
package persistence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/visa2any/checkout-api/internal/domain"
)

const (
	// Retention is how long a saved snapshot stays restorable. Older
	// snapshots are discarded on load.
	Retention = 24 * time.Hour

	// DefaultDebounce is the write coalescing window. Only the last save
	// scheduled within the window lands.
	DefaultDebounce = time.Second
)

// ErrNotFound is returned by stores when no snapshot exists under a key.
var ErrNotFound = errors.New("persistence: snapshot not found")

// Snapshot is the durable record of an in-progress checkout. Consent fields
// (terms, contract acceptance) are deliberately excluded; they must be
// re-affirmed every session.
type Snapshot struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	PhoneCountry  string `json:"phoneCountry,omitempty"`
	CPF           string `json:"cpf,omitempty"`
	TargetCountry string `json:"targetCountry,omitempty"`
	Newsletter    bool   `json:"newsletter,omitempty"`
	Adults        int    `json:"adults"`
	Children      int    `json:"children"`
	SavedAt       int64  `json:"savedAt"`
}

// NewSnapshot builds a snapshot from the non-consent subset of customer data.
func NewSnapshot(data domain.CustomerData, adults, children int, savedAt time.Time) Snapshot {
	return Snapshot{
		Name:          data.Name,
		Email:         data.Email,
		Phone:         data.Phone,
		PhoneCountry:  data.PhoneCountry,
		CPF:           data.CPF,
		TargetCountry: data.TargetCountry,
		Newsletter:    data.Newsletter,
		Adults:        adults,
		Children:      children,
		SavedAt:       savedAt.UnixMilli(),
	}
}

// CustomerData rehydrates the stored fields into a customer record with all
// consent flags reset.
func (s Snapshot) CustomerData() domain.CustomerData {
	return domain.CustomerData{
		Name:          s.Name,
		Email:         s.Email,
		Phone:         s.Phone,
		PhoneCountry:  s.PhoneCountry,
		CPF:           s.CPF,
		TargetCountry: s.TargetCountry,
		Newsletter:    s.Newsletter,
	}
}

// Store is the raw keyed snapshot storage underneath the adapter.
type Store interface {
	Put(ctx context.Context, key string, snapshot Snapshot) error
	Get(ctx context.Context, key string) (Snapshot, error)
	Delete(ctx context.Context, key string) error
}

// AdapterDeps wires the adapter's dependencies.
type AdapterDeps struct {
	Store    Store
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Debounce time.Duration
}

// Adapter coordinates debounced saves, expiry-aware loads, and clears over a
// Store. All operations are best-effort.
type Adapter struct {
	store    Store
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewAdapter constructs an Adapter, defaulting the clock, logger, and
// debounce window.
func NewAdapter(deps AdapterDeps) (*Adapter, error) {
	if deps.Store == nil {
		return nil, errors.New("persistence: store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	debounce := deps.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Adapter{
		store:    deps.Store,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Save schedules a debounced write of the snapshot. A save scheduled while a
// previous one is pending supersedes it; only the last write in the window
// lands. Nothing is written while both name and email are empty.
func (a *Adapter) Save(ctx context.Context, key string, data domain.CustomerData, adults, children int) {
	if strings.TrimSpace(data.Name) == "" && strings.TrimSpace(data.Email) == "" {
		return
	}
	snapshot := NewSnapshot(data, adults, children, a.now())

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if timer, ok := a.timers[key]; ok {
		timer.Stop()
	}
	a.timers[key] = time.AfterFunc(a.debounce, func() {
		a.mu.Lock()
		delete(a.timers, key)
		a.mu.Unlock()
		a.write(context.WithoutCancel(ctx), key, snapshot)
	})
}

// SaveNow writes the snapshot immediately, bypassing the debounce window.
func (a *Adapter) SaveNow(ctx context.Context, key string, data domain.CustomerData, adults, children int) {
	if strings.TrimSpace(data.Name) == "" && strings.TrimSpace(data.Email) == "" {
		return
	}
	a.write(ctx, key, NewSnapshot(data, adults, children, a.now()))
}

func (a *Adapter) write(ctx context.Context, key string, snapshot Snapshot) {
	if err := a.store.Put(ctx, key, snapshot); err != nil {
		a.logger(ctx, "persistence.save_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

// Load returns the stored snapshot for key, or false when it is missing,
// malformed, or older than the retention window. Expired snapshots are
// deleted as a side effect of detection.
func (a *Adapter) Load(ctx context.Context, key string) (Snapshot, bool) {
	snapshot, err := a.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger(ctx, "persistence.load_failed", map[string]any{"key": key, "error": err.Error()})
		}
		return Snapshot{}, false
	}

	savedAt := time.UnixMilli(snapshot.SavedAt)
	if a.now().Sub(savedAt) > Retention {
		if err := a.store.Delete(ctx, key); err != nil {
			a.logger(ctx, "persistence.expire_failed", map[string]any{"key": key, "error": err.Error()})
		}
		return Snapshot{}, false
	}
	return snapshot, true
}

// Clear deletes the stored snapshot unconditionally.
func (a *Adapter) Clear(ctx context.Context, key string) {
	a.mu.Lock()
	if timer, ok := a.timers[key]; ok {
		timer.Stop()
		delete(a.timers, key)
	}
	a.mu.Unlock()

	if err := a.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		a.logger(ctx, "persistence.clear_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

// Close stops all pending debounce timers without flushing them.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for key, timer := range a.timers {
		timer.Stop()
		delete(a.timers, key)
	}
}
