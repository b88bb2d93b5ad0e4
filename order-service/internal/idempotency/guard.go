// Package idempotency remembers which order a client-supplied key produced,
// so a retried create returns the original order instead of a new one.
package idempotency

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
)

const (
	// DefaultTTL is how long a completed key keeps resolving to its order.
	DefaultTTL = 24 * time.Hour
	// DefaultPendingTTL bounds how long an unfinished create holds its key.
	// It must outlast the slowest create, catalog lookups included.
	DefaultPendingTTL = time.Minute

	sweepInterval = time.Minute
)

var (
	ErrInProgress = apperr.New(apperr.Conflict, "a request with this idempotency key is still in progress")
	ErrKeyReused  = apperr.New(apperr.Conflict, "idempotency key was already used with a different request")
)

// Guard reserves keys for the duration of a create.
//
// Begin returns the stored result of a completed request, or "" when the
// caller now owns the key and must finish with Complete or Release. The
// fingerprint identifies the request body; a key presented with another
// fingerprint is rejected with ErrKeyReused.
type Guard interface {
	Begin(ctx context.Context, key, fingerprint string) (string, error)
	Complete(ctx context.Context, key, fingerprint, result string) error
	Release(ctx context.Context, key string) error
}

const (
	statePending = "pending"
	stateDone    = "done"
)

// record is stored as "state|fingerprint|result".
type record struct {
	state       string
	fingerprint string
	result      string
}

func (r record) encode() string {
	return r.state + "|" + r.fingerprint + "|" + r.result
}

func decode(v string) record {
	parts := strings.SplitN(v, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return record{state: parts[0], fingerprint: parts[1], result: parts[2]}
}

// resolve turns an existing record into Begin's answer.
func resolve(r record, fingerprint string) (string, error) {
	if r.fingerprint != fingerprint {
		return "", ErrKeyReused
	}
	if r.state != stateDone {
		return "", ErrInProgress
	}
	return r.result, nil
}

type entry struct {
	record
	expiresAt time.Time
}

type memoryGuard struct {
	mu         sync.Mutex
	entries    map[string]entry
	pendingTTL time.Duration
	ttl        time.Duration
	now        func() time.Time
	lastSweep  time.Time
}

func NewMemoryGuard(pendingTTL, ttl time.Duration) Guard {
	return newMemoryGuard(pendingTTL, ttl, time.Now)
}

func newMemoryGuard(pendingTTL, ttl time.Duration, now func() time.Time) *memoryGuard {
	return &memoryGuard{
		entries:    make(map[string]entry),
		pendingTTL: pendingTTL,
		ttl:        ttl,
		now:        now,
		lastSweep:  now(),
	}
}

func (g *memoryGuard) Begin(_ context.Context, key, fingerprint string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	if e, ok := g.entries[key]; ok && now.Before(e.expiresAt) {
		return resolve(e.record, fingerprint)
	}

	g.entries[key] = entry{
		record:    record{state: statePending, fingerprint: fingerprint},
		expiresAt: now.Add(g.pendingTTL),
	}
	return "", nil
}

func (g *memoryGuard) Complete(_ context.Context, key, fingerprint, result string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[key] = entry{
		record:    record{state: stateDone, fingerprint: fingerprint, result: result},
		expiresAt: g.now().Add(g.ttl),
	}
	return nil
}

func (g *memoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.entries, key)
	return nil
}

// sweep drops expired entries at most once per sweepInterval. Callers hold mu.
func (g *memoryGuard) sweep(now time.Time) {
	if now.Sub(g.lastSweep) < sweepInterval {
		return
	}
	for k, e := range g.entries {
		if !now.Before(e.expiresAt) {
			delete(g.entries, k)
		}
	}
	g.lastSweep = now
}
