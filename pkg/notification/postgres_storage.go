package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres unique_violation error code, raised by the partial unique index
// on idempotency_key. That index is the real duplicate-submission guarantee;
// the application-level lookup is only a fast path.
const pgUniqueViolation = "23505"

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool. The schema is managed
// by the goose migrations shipped in the migrations directory.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const notificationColumns = `id, channel, status, priority, recipient, sender, content,
	scheduled_at, idempotency_key, retry_count, max_retries, provider_message_id,
	batch_id, metadata, created_at, updated_at, deleted_at`

func (s *PostgresStore) Create(ctx context.Context, n *Notification) error {
	content, err := json.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	now := time.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (id, channel, status, priority, recipient, sender, content,
			scheduled_at, idempotency_key, retry_count, max_retries, provider_message_id,
			batch_id, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		n.ID, n.Channel, n.Status, n.Priority, n.Recipient, n.Sender, content,
		n.ScheduledAt, n.IdempotencyKey, n.RetryCount, n.MaxRetries, n.ProviderMessageID,
		n.BatchID, metadata, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanNotification(row)
}

func (s *PostgresStore) GetByIdempotencyKey(ctx context.Context, key string) (*Notification, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE idempotency_key = $1 AND deleted_at IS NULL`, key)
	return scanNotification(row)
}

func (s *PostgresStore) Transition(ctx context.Context, id uuid.UUID, to Status, apply func(*Notification)) (*Notification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	n, err := scanNotification(row)
	if err != nil {
		return nil, err
	}
	if !CanTransition(n.Status, to) {
		return nil, ErrInvalidTransition
	}

	n.Status = to
	if apply != nil {
		apply(n)
	}
	n.UpdatedAt = time.Now()

	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE notifications
		SET status = $2, retry_count = $3, provider_message_id = $4, metadata = $5, updated_at = $6
		WHERE id = $1`,
		n.ID, n.Status, n.RetryCount, n.ProviderMessageID, metadata, n.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ClaimForRetry(ctx context.Context, id uuid.UUID) (*Notification, error) {
	// Single conditional UPDATE gives per-record mutual exclusion: a record
	// already claimed, terminal, or out of budget matches zero rows.
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3 AND retry_count < max_retries AND deleted_at IS NULL
		RETURNING `+notificationColumns,
		id, StatusProcessing, StatusFailed)
	n, err := scanNotification(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotRetryable
	}
	return n, err
}

func (s *PostgresStore) ListRetryable(ctx context.Context, limit int) ([]*Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = $1 AND retry_count < max_retries AND deleted_at IS NULL
		ORDER BY updated_at ASC
		LIMIT $2`,
		StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendLog(ctx context.Context, l *Log) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_logs (id, notification_id, event, message, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.NotificationID, l.Event, l.Message, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *PostgresStore) Logs(ctx context.Context, notificationID uuid.UUID) ([]*Log, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, notification_id, event, message, created_at
		FROM notification_logs
		WHERE notification_id = $1
		ORDER BY created_at ASC`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []*Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.NotificationID, &l.Event, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePushToken(ctx context.Context, t *PushToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO push_tokens (token, provider, user_id, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,true,now(),now())
		ON CONFLICT (token) DO UPDATE
		SET provider = EXCLUDED.provider, user_id = EXCLUDED.user_id,
			is_active = true, updated_at = now()`,
		t.Token, t.Provider, t.UserID)
	if err != nil {
		return fmt.Errorf("save push token: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivatePushToken(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE push_tokens SET is_active = false, updated_at = now() WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("deactivate push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActivePushTokens(ctx context.Context, userID string) ([]*PushToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token, provider, user_id, is_active, created_at, updated_at
		FROM push_tokens
		WHERE user_id = $1 AND is_active
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list push tokens: %w", err)
	}
	defer rows.Close()

	var out []*PushToken
	for rows.Next() {
		var t PushToken
		if err := rows.Scan(&t.Token, &t.Provider, &t.UserID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ProviderOverride(ctx context.Context, channel Channel) (string, error) {
	var provider string
	err := s.pool.QueryRow(ctx,
		`SELECT provider FROM provider_overrides WHERE channel = $1 AND is_active`, channel).Scan(&provider)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get provider override: %w", err)
	}
	return provider, nil
}

func (s *PostgresStore) SetProviderOverride(ctx context.Context, channel Channel, provider string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_overrides (channel, provider, is_active, updated_at)
		VALUES ($1,$2,true,now())
		ON CONFLICT (channel) DO UPDATE SET provider = EXCLUDED.provider, is_active = true, updated_at = now()`,
		channel, provider)
	if err != nil {
		return fmt.Errorf("set provider override: %w", err)
	}
	return nil
}

// scanNotification reads one row into the domain struct, decoding the JSONB
// content and metadata columns.
func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n        Notification
		content  []byte
		metadata []byte
	)
	err := row.Scan(&n.ID, &n.Channel, &n.Status, &n.Priority, &n.Recipient, &n.Sender, &content,
		&n.ScheduledAt, &n.IdempotencyKey, &n.RetryCount, &n.MaxRetries, &n.ProviderMessageID,
		&n.BatchID, &metadata, &n.CreatedAt, &n.UpdatedAt, &n.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &n.Content); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &n, nil
}
