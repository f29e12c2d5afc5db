package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/visa2any/checkout-api/internal/domain"
	"github.com/visa2any/checkout-api/internal/payments"
)

// ErrSessionNotFound is returned when a session id does not resolve.
var ErrSessionNotFound = errors.New("checkout: session not found")

// PaymentAttempt records the outcome of the most recent payment submission,
// including everything the customer needs to complete a pending PIX or
// boleto.
type PaymentAttempt struct {
	Method          domain.PaymentMethod `json:"method"`
	PaymentID       string               `json:"paymentId"`
	PreferenceID    string               `json:"preferenceId,omitempty"`
	PublicKey       string               `json:"publicKey,omitempty"`
	ClientSecret    string               `json:"clientSecret,omitempty"`
	RedirectURL     string               `json:"redirectUrl,omitempty"`
	PixCode         string               `json:"pixCode,omitempty"`
	PixQRCodeBase64 string               `json:"pixQrCodeBase64,omitempty"`
	BoletoURL       string               `json:"boletoUrl,omitempty"`
	Status          payments.Status      `json:"status"`
	TimedOut        bool                 `json:"timedOut,omitempty"`
	StartedAt       time.Time            `json:"startedAt"`
}

// Session owns one checkout's in-memory state. All access goes through the
// mutex; the reducer remains pure and the session serialises its application.
type Session struct {
	ID        string
	ClientKey string
	CreatedAt time.Time

	mu          sync.Mutex
	state       domain.CheckoutState
	payment     *PaymentAttempt
	cancelWatch context.CancelFunc
	updatedAt   time.Time
	attempts    int
	disposed    bool
}

func newSession(id, clientKey string, now time.Time) *Session {
	return &Session{
		ID:        id,
		ClientKey: clientKey,
		CreatedAt: now,
		state:     domain.InitialCheckoutState(),
		updatedAt: now,
	}
}

// State returns a copy of the current checkout state.
func (s *Session) State() domain.CheckoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Payment returns a copy of the latest payment attempt, if any.
func (s *Session) Payment() *PaymentAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment == nil {
		return nil
	}
	attempt := *s.payment
	return &attempt
}

// dispatch applies actions under the session lock and returns the new state.
// Dispatches against a disposed session are dropped so a late poller cannot
// resurrect state after the session ended.
func (s *Session) dispatch(now time.Time, actions ...Action) (domain.CheckoutState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return s.state, false
	}
	for _, action := range actions {
		s.state = Reduce(s.state, action)
	}
	s.updatedAt = now
	return s.state, true
}

// dispatchIf evaluates guard against the current state and applies the
// returned actions in the same critical section. Two concurrent callers cannot
// both pass a guard against the same stale state; the loser re-evaluates
// against the winner's result.
func (s *Session) dispatchIf(now time.Time, guard func(domain.CheckoutState) ([]Action, error)) (domain.CheckoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return s.state, nil
	}
	actions, err := guard(s.state)
	if err != nil {
		return s.state, err
	}
	for _, action := range actions {
		s.state = Reduce(s.state, action)
	}
	if len(actions) > 0 {
		s.updatedAt = now
	}
	return s.state, nil
}

// updatePayment mutates the current payment attempt under the session lock.
// No-op when the session is disposed or no attempt exists.
func (s *Session) updatePayment(fn func(*PaymentAttempt)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.payment == nil {
		return
	}
	fn(s.payment)
}

// nextAttempt increments and returns the submission counter. Each submission
// gets a distinct idempotency key so a retry after a rejection is not deduped
// into the failed payment.
func (s *Session) nextAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *Session) setPayment(attempt *PaymentAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.payment = attempt
}

// beginWatch stores the cancel func of a running status watch, cancelling any
// previous one first.
func (s *Session) beginWatch(cancel context.CancelFunc) {
	s.mu.Lock()
	prev := s.cancelWatch
	s.cancelWatch = cancel
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// stopWatch cancels a running status watch, if any.
func (s *Session) stopWatch() {
	s.mu.Lock()
	cancel := s.cancelWatch
	s.cancelWatch = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) dispose() {
	s.mu.Lock()
	s.disposed = true
	cancel := s.cancelWatch
	s.cancelWatch = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SessionStore keeps live checkout sessions in memory, keyed by id.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore constructs an empty session store.
func NewSessionStore(clock func() time.Time) *SessionStore {
	if clock == nil {
		clock = time.Now
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return clock().UTC() },
	}
}

// Create registers a new session for the given client key.
func (st *SessionStore) Create(clientKey string) *Session {
	now := st.now()
	session := newSession(ulid.Make().String(), strings.TrimSpace(clientKey), now)
	st.mu.Lock()
	st.sessions[session.ID] = session
	st.mu.Unlock()
	return session
}

// Get resolves a session by id.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.Lock()
	session, ok := st.sessions[strings.TrimSpace(id)]
	st.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete disposes and removes a session.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	session, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		session.dispose()
	}
}

// CleanupExpired disposes sessions idle for longer than ttl and reports how
// many were removed.
func (st *SessionStore) CleanupExpired(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	now := st.now()
	var expired []*Session
	st.mu.Lock()
	for id, session := range st.sessions {
		session.mu.Lock()
		idle := now.Sub(session.updatedAt)
		session.mu.Unlock()
		if idle > ttl {
			expired = append(expired, session)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()
	for _, session := range expired {
		session.dispose()
	}
	return len(expired)
}

// Len reports the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
