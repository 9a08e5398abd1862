package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxExportRows caps a single CSV export.
const MaxExportRows = 5000

// WindowParams selects one window of the timeline.
type WindowParams struct {
	TenantID   int64
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	ActorID    pgtype.Int8
	Entity     pgtype.Text
	EntityID   pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// Repository reads audit_logs from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TimelineWindow returns records newest first.
func (r *Repository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT occurred_at, actor_id, action, entity, entity_id, meta
		FROM audit_logs
		WHERE tenant_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at < $3)
		  AND ($4::bigint IS NULL OR actor_id = $4)
		  AND ($5::text IS NULL OR entity = $5)
		  AND ($6::text IS NULL OR entity_id = $6)
		  AND ($7::text IS NULL OR action = $7)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $8 LIMIT $9`,
		arg.TenantID, arg.FromAt, arg.ToAt, arg.ActorID, arg.Entity, arg.EntityID, arg.Action,
		arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanRow(rows pgx.Rows) (TimelineRow, error) {
	var (
		row  TimelineRow
		at   pgtype.Timestamptz
		meta []byte
	)
	if err := rows.Scan(&at, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
		return TimelineRow{}, err
	}
	if at.Valid {
		row.At = at.Time
	}
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &row.Meta); err != nil {
			return TimelineRow{}, fmt.Errorf("decode audit meta: %w", err)
		}
	}
	return row, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func optionalInt(value *int64) pgtype.Int8 {
	if value == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *value, Valid: true}
}
