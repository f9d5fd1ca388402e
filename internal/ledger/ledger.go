// Package ledger issues and verifies single-use, time-limited confirmation
// nonces. Each session holds at most one PendingAction; proposing a new
// one replaces the old, and confirming, cancelling or expiring removes it.
package ledger

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/mofangju/security-agent/internal/intent"
)

const (
	DefaultTTL         = 300 * time.Second
	DefaultNonceLength = 6

	maxNonceLength = 18
)

// Options configures a Ledger.
type Options struct {
	TTL         time.Duration
	NonceLength int
	// Rand is the entropy source; crypto/rand when nil.
	Rand io.Reader
}

// Ledger is the per-session confirmation state machine.
type Ledger struct {
	store    Store
	ttl      time.Duration
	nonceLen int
	rand     io.Reader
	locks    *keyedMutex
}

// New builds a Ledger over store.
func New(store Store, opts Options) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.NonceLength <= 0 {
		opts.NonceLength = DefaultNonceLength
	}
	if opts.NonceLength > maxNonceLength {
		opts.NonceLength = maxNonceLength
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	return &Ledger{
		store:    store,
		ttl:      opts.TTL,
		nonceLen: opts.NonceLength,
		rand:     opts.Rand,
		locks:    newKeyedMutex(),
	}
}

// TTL is the confirmation window.
func (l *Ledger) TTL() time.Duration { return l.ttl }

// Propose records in as the session's pending action under a fresh nonce,
// discarding any earlier unconfirmed action.
func (l *Ledger) Propose(ctx context.Context, session string, in intent.Intent, now time.Time) (PendingAction, error) {
	if !in.SideEffecting() {
		return PendingAction{}, fmt.Errorf("propose %q: intent has no side effect", in.Kind)
	}
	nonce, err := l.newNonce()
	if err != nil {
		return PendingAction{}, fmt.Errorf("generate nonce: %w", err)
	}

	unlock := l.locks.Lock(session)
	defer unlock()

	action := PendingAction{
		Session:   session,
		Intent:    in,
		Nonce:     nonce,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.store.Put(ctx, action); err != nil {
		return PendingAction{}, err
	}
	return action, nil
}

// Confirm checks text against the session's pending action. On success
// the record is removed and returned; the caller may execute it once.
// ErrExpired also removes the record. ErrNonceMismatch leaves it pending.
func (l *Ledger) Confirm(ctx context.Context, session, text string, now time.Time) (PendingAction, error) {
	unlock := l.locks.Lock(session)
	defer unlock()

	action, ok, err := l.store.Get(ctx, session)
	if err != nil {
		return PendingAction{}, err
	}
	if !ok {
		return PendingAction{}, ErrNoPendingAction
	}
	if action.Expired(now) {
		if err := l.store.Delete(ctx, session); err != nil {
			return PendingAction{}, err
		}
		return action, ErrExpired
	}

	supplied, _ := intent.ExtractNonce(text)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(action.Nonce)) != 1 {
		return action, ErrNonceMismatch
	}

	took, err := l.store.Take(ctx, session, action.Nonce)
	if err != nil {
		return PendingAction{}, err
	}
	if !took {
		// another replica consumed or replaced it between Get and Take
		return PendingAction{}, ErrNoPendingAction
	}
	return action, nil
}

// Cancel drops any pending action. Calling it with nothing pending is fine.
func (l *Ledger) Cancel(ctx context.Context, session string) error {
	unlock := l.locks.Lock(session)
	defer unlock()
	return l.store.Delete(ctx, session)
}

// Pending returns the stored action without checking expiry.
func (l *Ledger) Pending(ctx context.Context, session string) (PendingAction, bool, error) {
	return l.store.Get(ctx, session)
}

// State reports NONE or PENDING. An expired record reads as NONE.
func (l *Ledger) State(ctx context.Context, session string, now time.Time) (State, error) {
	action, ok, err := l.store.Get(ctx, session)
	if err != nil {
		return StateNone, err
	}
	if !ok || action.Expired(now) {
		return StateNone, nil
	}
	return StatePending, nil
}

func (l *Ledger) newNonce() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(l.nonceLen)), nil)
	n, err := rand.Int(l.rand, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", l.nonceLen, n.Int64()), nil
}
