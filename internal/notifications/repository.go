package notifications

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LogRepository stores delivery attempts in notification_logs.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository constructs the repository.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Write implements LogWriter.
func (r *LogRepository) Write(ctx context.Context, entry LogEntry) error {
	if r == nil || r.pool == nil {
		return errors.New("notification log repository not initialised")
	}
	var entityID *int64
	if entry.EntityID != 0 {
		entityID = &entry.EntityID
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO notification_logs
(tenant_id, type, channel, recipient, entity_type, entity_id, success, error, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9)`,
		entry.TenantID, string(entry.Type), string(entry.Channel), entry.Recipient,
		entry.EntityType, entityID, entry.Success, entry.Error, entry.CreatedAt)
	return err
}

// ListForEntity returns the most recent attempts for a record.
func (r *LogRepository) ListForEntity(ctx context.Context, tenantID int64, entityType string, entityID int64, limit int) ([]LogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, type, channel, recipient, COALESCE(entity_type, ''),
COALESCE(entity_id, 0), success, COALESCE(error, ''), created_at
FROM notification_logs
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
ORDER BY created_at DESC, id DESC
LIMIT $4`, tenantID, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var typ, channel string
		if err := rows.Scan(&e.TenantID, &typ, &channel, &e.Recipient, &e.EntityType,
			&e.EntityID, &e.Success, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = Type(typ)
		e.Channel = Channel(channel)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
