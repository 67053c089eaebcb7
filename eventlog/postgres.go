package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed event store from a
// connection string.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq BIGSERIAL PRIMARY KEY,
		time TIMESTAMP WITH TIME ZONE NOT NULL,
		kind VARCHAR(64) NOT NULL,
		lower_bound BIGINT NOT NULL DEFAULT 0,
		upper_bound BIGINT NOT NULL DEFAULT 0,
		caller VARCHAR(128) NOT NULL DEFAULT '',
		result_handle VARCHAR(64) NOT NULL DEFAULT '',
		previous_owner VARCHAR(128) NOT NULL DEFAULT '',
		new_owner VARCHAR(128) NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append persists an event and reads back its assigned sequence number.
func (s *PostgresStore) Append(ctx context.Context, event *Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO events
		(time, kind, lower_bound, upper_bound, caller, result_handle, previous_owner, new_owner)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING seq
	`

	return s.db.QueryRowContext(ctx, query,
		event.Time,
		string(event.Kind),
		int64(event.Lower),
		int64(event.Upper),
		event.Caller,
		event.ResultHandle,
		event.PreviousOwner,
		event.NewOwner,
	).Scan(&event.Seq)
}

// List returns events after afterSeq, at most limit of them.
func (s *PostgresStore) List(ctx context.Context, afterSeq uint64, limit int) ([]*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
	SELECT seq, time, kind, lower_bound, upper_bound, caller, result_handle, previous_owner, new_owner
	FROM events
	WHERE seq > $1
	ORDER BY seq ASC
	`
	args := []interface{}{int64(afterSeq)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Event
	for rows.Next() {
		var (
			event Event
			kind  string
			lower int64
			upper int64
		)
		if err := rows.Scan(&event.Seq, &event.Time, &kind, &lower, &upper,
			&event.Caller, &event.ResultHandle, &event.PreviousOwner, &event.NewOwner); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		event.Kind = EventKind(kind)
		event.Lower = uint32(lower)
		event.Upper = uint32(upper)
		result = append(result, &event)
	}

	return result, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
