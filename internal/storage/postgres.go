package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConnString renders the config as a lib/pq keyword/value string.
func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStorage stores the snapshot in three tables and replaces their
// content in a single transaction on every save.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: connect to database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: initialize schema: %w", err)
	}
	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("read migrations file: %w", err)
	}
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("execute migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Load(ctx context.Context) (models.Snapshot, error) {
	var snapshot models.Snapshot

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, thread_id, last_active_at
		FROM relay_bindings
		ORDER BY user_id`)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("storage: query bindings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b models.Binding
		if err := rows.Scan(&b.UserID, &b.ThreadID, &b.LastActiveAt); err != nil {
			return models.Snapshot{}, fmt.Errorf("storage: scan binding: %w", err)
		}
		snapshot.Bindings = append(snapshot.Bindings, b)
	}
	if err := rows.Err(); err != nil {
		return models.Snapshot{}, fmt.Errorf("storage: iterate bindings: %w", err)
	}

	var banned pq.Int64Array
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(array_agg(user_id ORDER BY user_id), '{}') FROM relay_bans`).Scan(&banned)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("storage: query bans: %w", err)
	}
	if len(banned) > 0 {
		snapshot.Banned = []int64(banned)
	}

	err = s.db.QueryRowContext(ctx, `SELECT saved_at FROM relay_state WHERE id = 1`).Scan(&snapshot.SavedAt)
	if err != nil && err != sql.ErrNoRows {
		return models.Snapshot{}, fmt.Errorf("storage: query state: %w", err)
	}

	snapshot.Normalize()
	return snapshot, nil
}

func (s *PostgresStorage) Save(ctx context.Context, snapshot models.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relay_bindings`); err != nil {
		return fmt.Errorf("storage: clear bindings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relay_bans`); err != nil {
		return fmt.Errorf("storage: clear bans: %w", err)
	}

	if len(snapshot.Bindings) > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("relay_bindings", "user_id", "thread_id", "last_active_at"))
		if err != nil {
			return fmt.Errorf("storage: prepare copy: %w", err)
		}
		for _, b := range snapshot.Bindings {
			if _, err := stmt.ExecContext(ctx, b.UserID, b.ThreadID, b.LastActiveAt.UTC()); err != nil {
				stmt.Close()
				return fmt.Errorf("storage: copy binding %d: %w", b.UserID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("storage: flush bindings: %w", err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("storage: close copy: %w", err)
		}
	}

	if len(snapshot.Banned) > 0 {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO relay_bans (user_id) SELECT unnest($1::bigint[])`,
			pq.Array(snapshot.Banned))
		if err != nil {
			return fmt.Errorf("storage: insert bans: %w", err)
		}
	}

	savedAt := snapshot.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO relay_state (id, saved_at) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET saved_at = EXCLUDED.saved_at`, savedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage: update state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
