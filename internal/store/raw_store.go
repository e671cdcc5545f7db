package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/orgpulse/internal/model"
)

type rawRow struct {
	Source     string `db:"source"`
	Ref        string `db:"ref"`
	OrgID      string `db:"org_id"`
	Payload    string `db:"payload"`
	ReceivedAt int64  `db:"received_at"`
}

// PutRawRecord inserts r or replaces the stored payload for (source, ref).
// A zero ReceivedAt is set to the store clock.
func (s *SQLStore) PutRawRecord(ctx context.Context, r model.RawRecord) error {
	if r.Ref == "" {
		return fmt.Errorf("raw %s record has no ref", r.Source)
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO raw_records (source, ref, org_id, payload, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source, ref) DO UPDATE SET
			org_id = excluded.org_id,
			payload = excluded.payload,
			received_at = excluded.received_at`),
		string(r.Source), r.Ref, r.OrgID, string(r.Payload), toMillis(r.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("storing raw %s record %s: %w", r.Source, r.Ref, err)
	}
	return nil
}

// ListRawRecords returns the records of source received at or after since
// (all when nil), oldest first.
func (s *SQLStore) ListRawRecords(ctx context.Context, source model.Source, since *time.Time) ([]model.RawRecord, error) {
	query := "SELECT source, ref, org_id, payload, received_at FROM raw_records WHERE source = ?"
	args := []interface{}{string(source)}
	if since != nil {
		query += " AND received_at >= ?"
		args = append(args, toMillis(*since))
	}
	query += " ORDER BY received_at, ref"

	var rows []rawRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying raw %s records: %w", source, err)
	}

	records := make([]model.RawRecord, len(rows))
	for i, r := range rows {
		records[i] = model.RawRecord{
			Source:     model.Source(r.Source),
			Ref:        r.Ref,
			OrgID:      r.OrgID,
			Payload:    []byte(r.Payload),
			ReceivedAt: fromMillis(r.ReceivedAt),
		}
	}
	return records, nil
}
