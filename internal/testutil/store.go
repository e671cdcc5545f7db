package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
)

// NewTestStore creates an in-memory SQLStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Clock is a settable time source for tests.
type Clock struct {
	T time.Time
}

// NewClock returns a clock frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{T: t}
}

func (c *Clock) Now() time.Time {
	return c.T
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

// PutRaw stores v, marshaled to JSON, as a raw record of source.
func PutRaw(t *testing.T, s store.RawStore, source model.Source, ref string, receivedAt time.Time, v any) {
	t.Helper()

	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling raw %s record %s: %v", source, ref, err)
	}
	err = s.PutRawRecord(context.Background(), model.RawRecord{
		Source:     source,
		Ref:        ref,
		OrgID:      "org-1",
		Payload:    payload,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		t.Fatalf("storing raw %s record %s: %v", source, ref, err)
	}
}
