package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/errorcue/errorcue/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, owner, occurred_at, integration_name, error_type, error_message, raw_payload,
	resolved, resolved_at, retry_count, last_retry_at, retry_history, created_at, updated_at`

// qualifiedRecordColumns is recordColumns prefixed with the table name, for
// statements that join other relations.
var qualifiedRecordColumns = qualifyColumns("error_records", recordColumns)

func qualifyColumns(table, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = table + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Mode() Mode { return ModeDurable }

// --- Error Records ---

func (s *PostgresStore) CreateErrorRecord(ctx context.Context, rec *models.ErrorRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.RawPayload == nil {
		rec.RawPayload = map[string]any{}
	}
	if rec.RetryHistory == nil {
		rec.RetryHistory = []models.RetryResult{}
	}
	rec.RetryCount = len(rec.RetryHistory)

	history, err := json.Marshal(rec.RetryHistory)
	if err != nil {
		return fmt.Errorf("encode retry history: %w", err)
	}
	payload, err := json.Marshal(rec.RawPayload)
	if err != nil {
		return fmt.Errorf("encode raw payload: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO error_records (id, owner, occurred_at, integration_name, error_type, error_message,
		   raw_payload, resolved, resolved_at, retry_count, last_retry_at, retry_history)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12::jsonb)
		 RETURNING created_at, updated_at`,
		rec.ID, rec.Owner, rec.OccurredAt, rec.IntegrationName, rec.ErrorType, rec.ErrorMessage,
		string(payload), rec.Resolved, rec.ResolvedAt, rec.RetryCount, rec.LastRetryAt, string(history),
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create error record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetErrorRecord(ctx context.Context, id uuid.UUID) (*models.ErrorRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM error_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get error record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListErrorRecords(ctx context.Context, filter RecordFilter) ([]*models.ErrorRecord, error) {
	// Build WHERE clause dynamically
	conditions := []string{"owner = $1"}
	args := []any{filter.Owner}
	argIdx := 2

	if !filter.ShowResolved {
		conditions = append(conditions, "resolved = FALSE")
	}
	if filter.Integration != "" {
		conditions = append(conditions, fmt.Sprintf("integration_name = $%d", argIdx))
		args = append(args, filter.Integration)
		argIdx++
	}
	if filter.ErrorType != "" {
		conditions = append(conditions, fmt.Sprintf("error_type = $%d", argIdx))
		args = append(args, filter.ErrorType)
		argIdx++
	}
	if !filter.Start.IsZero() {
		conditions = append(conditions, fmt.Sprintf("occurred_at >= $%d", argIdx))
		args = append(args, filter.Start)
		argIdx++
	}
	if !filter.End.IsZero() {
		conditions = append(conditions, fmt.Sprintf("occurred_at <= $%d", argIdx))
		args = append(args, filter.End)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT %s FROM error_records WHERE %s ORDER BY occurred_at DESC, id LIMIT $%d`,
		recordColumns, strings.Join(conditions, " AND "), argIdx)
	args = append(args, normalizeLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list error records: %w", err)
	}
	defer rows.Close()

	records := []*models.ErrorRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) CountErrorRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM error_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count error records: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DistinctValues(ctx context.Context, owner string) ([]string, []string, error) {
	integrations, err := s.distinct(ctx, "integration_name", owner)
	if err != nil {
		return nil, nil, err
	}
	errorTypes, err := s.distinct(ctx, "error_type", owner)
	if err != nil {
		return nil, nil, err
	}
	return integrations, errorTypes, nil
}

// distinct is only called with fixed column names, never user input.
func (s *PostgresStore) distinct(ctx context.Context, column, owner string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT %s FROM error_records WHERE owner = $1`, column), owner)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct %s: %w", column, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *PostgresStore) WindowCounts(ctx context.Context, owner string, from, to time.Time) ([]models.WindowCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT error_type, integration_name, COUNT(*)
		 FROM error_records
		 WHERE owner = $1 AND occurred_at >= $2 AND occurred_at <= $3
		 GROUP BY error_type, integration_name`, owner, from, to)
	if err != nil {
		return nil, fmt.Errorf("window counts: %w", err)
	}
	defer rows.Close()

	var counts []models.WindowCount
	for rows.Next() {
		var c models.WindowCount
		if err := rows.Scan(&c.ErrorType, &c.IntegrationName, &c.Count); err != nil {
			return nil, fmt.Errorf("scan window count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// AppendRetry increments the counter and appends the history entry while
// holding the row lock. The retry time is read once, after the lock is held,
// and written to the history entry, last_retry_at and updated_at alike. It is
// kept strictly after the previous retry so history timestamps are distinct.
func (s *PostgresStore) AppendRetry(ctx context.Context, id uuid.UUID, entry RetryEntry) (*models.ErrorRecord, error) {
	response := entry.Response
	if response == nil {
		response = map[string]any{}
	}
	encoded, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("encode retry response: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append retry: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM error_records WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock error record: %w", err)
	}

	rec, err := scanRecord(tx.QueryRow(ctx,
		`WITH ts AS (
		   SELECT GREATEST(clock_timestamp(), last_retry_at + interval '1 microsecond') AS at
		   FROM error_records WHERE id = $1
		 )
		 UPDATE error_records SET
		   retry_count = retry_count + 1,
		   last_retry_at = ts.at,
		   retry_history = retry_history || jsonb_build_array(jsonb_build_object(
		     'timestamp', ts.at,
		     'success', $2::boolean,
		     'message', $3::text,
		     'response', $4::jsonb)),
		   updated_at = ts.at
		 FROM ts
		 WHERE error_records.id = $1
		 RETURNING `+qualifiedRecordColumns,
		id, entry.Success, entry.Message, string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("append retry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append retry: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*models.ErrorRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE error_records SET resolved = TRUE, resolved_at = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+recordColumns, id, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve error record: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ErrorRecord, error) {
	var r models.ErrorRecord
	if err := row.Scan(&r.ID, &r.Owner, &r.OccurredAt, &r.IntegrationName, &r.ErrorType, &r.ErrorMessage,
		&r.RawPayload, &r.Resolved, &r.ResolvedAt, &r.RetryCount, &r.LastRetryAt, &r.RetryHistory,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if r.RawPayload == nil {
		r.RawPayload = map[string]any{}
	}
	if r.RetryHistory == nil {
		r.RetryHistory = []models.RetryResult{}
	}
	return &r, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
