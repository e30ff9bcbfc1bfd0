// Package memory is an in-process OTP record store for tests and
// single-instance deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goOTP/record"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Store keeps records in a slice guarded by a mutex. Every method holds the
// lock for its whole duration, which makes Consume exactly-once.
type Store struct {
	mu      sync.Mutex
	records []*record.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func clone(r *record.Record) *record.Record {
	c := *r
	if r.VerifiedAt != nil {
		v := *r.VerifiedAt
		c.VerifiedAt = &v
	}
	return &c
}

func ofPair(userID string, ch record.Channel) func(*record.Record, int) bool {
	return func(r *record.Record, _ int) bool {
		return r.UserID == userID && r.Channel == ch
	}
}

// Insert stores a copy of rec, assigning an ID when empty.
func (s *Store) Insert(_ context.Context, rec *record.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, clone(rec))
	return nil
}

// Supersede forces every active record of (userID, ch) to expire at now.
func (s *Store) Supersede(_ context.Context, userID string, ch record.Channel, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Active means expires > now; already-expired records keep their original expiry.
	active := lo.Filter(s.records, func(r *record.Record, i int) bool {
		return ofPair(userID, ch)(r, i) && r.Active(now)
	})
	for _, r := range active {
		r.ExpiresAt = now
	}
	return int64(len(active)), nil
}

// Consume marks the active record matching code as verified at now.
func (s *Store) Consume(_ context.Context, userID string, ch record.Channel, code string, now time.Time) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := lo.Filter(s.records, func(r *record.Record, i int) bool {
		return ofPair(userID, ch)(r, i) && r.Code == code && !r.Consumed()
	})
	if hit, ok := lo.Find(matches, func(r *record.Record) bool { return r.Active(now) }); ok {
		at := now
		hit.VerifiedAt = &at
		return clone(hit), nil
	}
	if len(matches) > 0 {
		return nil, record.ErrExpired
	}
	return nil, record.ErrNotFound
}

// DeleteExpired removes records of userID whose expiry is before now.
func (s *Store) DeleteExpired(_ context.Context, userID string, now time.Time) (int64, error) {
	return s.deleteWhere(func(r *record.Record) bool {
		return r.UserID == userID && r.ExpiresAt.Before(now)
	}), nil
}

// DeleteAllExpired removes every record whose expiry is before now.
func (s *Store) DeleteAllExpired(_ context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(func(r *record.Record) bool {
		return r.ExpiresAt.Before(now)
	}), nil
}

func (s *Store) deleteWhere(match func(*record.Record) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := lo.Reject(s.records, func(r *record.Record, _ int) bool { return match(r) })
	removed := int64(len(s.records) - len(kept))
	s.records = kept
	return removed
}

// List returns copies of every record of (userID, ch), oldest first.
func (s *Store) List(_ context.Context, userID string, ch record.Channel) ([]*record.Record, error) {
	s.mu.Lock()
	out := lo.Map(lo.Filter(s.records, ofPair(userID, ch)), func(r *record.Record, _ int) *record.Record {
		return clone(r)
	})
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
