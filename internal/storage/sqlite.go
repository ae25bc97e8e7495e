package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the activity log and the video
// operation journal. The service opens it in memory; nothing survives a restart.
type Store struct {
	db *sql.DB
}

// Memory opens an in-memory database when passed to Open.
const Memory = ":memory:"

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass Memory as dataDir for an in-memory database.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == Memory {
		dsn = Memory
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "dreamhouse.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Activity ---

func (s *Store) SaveActivity(a Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Kind == "" {
		a.Kind = "info"
	}
	_, err := s.db.Exec(`
		INSERT INTO activity (id, created_at, kind, project_id, message)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt.UTC().Format(time.RFC3339Nano), a.Kind, a.ProjectID, a.Message,
	)
	return err
}

// RecentActivity returns up to limit entries, newest first.
func (s *Store) RecentActivity(limit int) ([]Activity, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, kind, project_id, message
		FROM activity ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Activity
	for rows.Next() {
		var a Activity
		var createdAt string
		if err := rows.Scan(&a.ID, &createdAt, &a.Kind, &a.ProjectID, &a.Message); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		a.CreatedAt = t
		results = append(results, a)
	}
	return results, rows.Err()
}

// PruneActivity deletes everything but the newest keep entries.
func (s *Store) PruneActivity(keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM activity WHERE rowid NOT IN (
			SELECT rowid FROM activity ORDER BY rowid DESC LIMIT ?
		)`, keep,
	)
	return err
}

// --- Video operations ---

const videoOperationColumns = `id, project_id, room_index, operation_name, status, polls, video_url, last_error, created_at, updated_at`

func (s *Store) CreateVideoOperation(op VideoOperation) error {
	now := time.Now().UTC()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	if op.Status == "" {
		op.Status = OperationStarting
	}
	_, err := s.db.Exec(`
		INSERT INTO video_operations (`+videoOperationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.ProjectID, op.RoomIndex, op.OperationName, op.Status, op.Polls,
		op.VideoURL, op.LastError,
		op.CreatedAt.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	return err
}

// UpdateVideoOperation overwrites the mutable fields of op.
func (s *Store) UpdateVideoOperation(op VideoOperation) error {
	res, err := s.db.Exec(`
		UPDATE video_operations
		SET operation_name = ?, status = ?, polls = ?, video_url = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		op.OperationName, op.Status, op.Polls, op.VideoURL, op.LastError,
		time.Now().UTC().Format(time.RFC3339Nano), op.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetVideoOperation(id string) (VideoOperation, error) {
	row := s.db.QueryRow(`SELECT `+videoOperationColumns+` FROM video_operations WHERE id = ?`, id)
	op, err := scanVideoOperation(row)
	if err == sql.ErrNoRows {
		return VideoOperation{}, ErrNotFound
	}
	return op, err
}

// ListVideoOperations returns every attempt for a project, oldest first.
func (s *Store) ListVideoOperations(projectID string) ([]VideoOperation, error) {
	rows, err := s.db.Query(`
		SELECT `+videoOperationColumns+` FROM video_operations
		WHERE project_id = ? ORDER BY rowid ASC`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []VideoOperation
	for rows.Next() {
		op, err := scanVideoOperation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, op)
	}
	return results, rows.Err()
}

// DeleteVideoOperations removes the journal of a deleted project.
func (s *Store) DeleteVideoOperations(projectID string) error {
	_, err := s.db.Exec(`DELETE FROM video_operations WHERE project_id = ?`, projectID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideoOperation(r rowScanner) (VideoOperation, error) {
	var op VideoOperation
	var createdAt, updatedAt string
	if err := r.Scan(&op.ID, &op.ProjectID, &op.RoomIndex, &op.OperationName, &op.Status, &op.Polls,
		&op.VideoURL, &op.LastError, &createdAt, &updatedAt); err != nil {
		return VideoOperation{}, err
	}
	var err error
	if op.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return VideoOperation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if op.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return VideoOperation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return op, nil
}
