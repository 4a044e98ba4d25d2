package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/gubacrawl/internal/model"
)

// HistoryFile is the database file name inside the data directory.
const HistoryFile = "gubacrawl.db"

// HistoryDB records crawl runs and mirrors every persisted comment in a
// single SQLite file.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL turns on write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// ErrHistoryNotFound is returned by Open when the database is missing and
// CreateIfNotExists is false.
var ErrHistoryNotFound = errors.New("history database not found")

// Open opens or creates the history database in dir.
func Open(dir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dir, HistoryFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrHistoryNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	h := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := h.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

func (h *HistoryDB) createTables() error {
	schema := `
	-- One row per crawl of one target
	CREATE TABLE IF NOT EXISTS crawl_runs (
		run_id TEXT PRIMARY KEY,
		target_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		start_page INTEGER,
		last_page INTEGER,
		pages_fetched INTEGER,
		records INTEGER,
		persist_errors INTEGER,
		proxy_rotations INTEGER,
		stop_reason TEXT,
		outcomes TEXT,
		output_file TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON crawl_runs(target_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

	-- Mirror of every comment written to a CSV file. run_id stays NULL
	-- until the run is saved.
	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_id TEXT NOT NULL,
		run_id TEXT,
		title TEXT NOT NULL,
		update_time TEXT NOT NULL,
		read_count TEXT,
		reply_count TEXT,
		author TEXT,
		post_url TEXT,
		stored_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_comments_target ON comments(target_id);
	CREATE INDEX IF NOT EXISTS idx_comments_run ON comments(run_id);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// Append mirrors one page of comments. It makes HistoryDB a record sink.
func (h *HistoryDB) Append(targetID string, comments []model.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	ctx := context.Background()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO comments (target_id, title, update_time, read_count, reply_count, author, post_url)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare comment insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range comments {
		if _, err := stmt.ExecContext(ctx, targetID, c.Title, c.UpdateTime, c.ReadCount, c.ReplyCount, c.Author, c.PostURL); err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit comments: %w", err)
	}
	return nil
}

// SaveRun stores a run summary and tags the target's untagged comments with
// its run id. Crawls run one after another, so those comments belong to it.
func (h *HistoryDB) SaveRun(ctx context.Context, s *model.RunSummary) error {
	outcomes, err := json.Marshal(s.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to serialize outcomes: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (run_id, target_id, started_at, finished_at, start_page, last_page,
		pages_fetched, records, persist_errors, proxy_rotations, stop_reason, outcomes, output_file, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		finished_at = excluded.finished_at,
		last_page = excluded.last_page,
		pages_fetched = excluded.pages_fetched,
		records = excluded.records,
		persist_errors = excluded.persist_errors,
		proxy_rotations = excluded.proxy_rotations,
		stop_reason = excluded.stop_reason,
		outcomes = excluded.outcomes,
		output_file = excluded.output_file,
		error = excluded.error
	`,
		s.RunID,
		s.TargetID,
		formatTimestamp(s.StartedAt),
		formatTimestamp(s.FinishedAt),
		s.StartPage,
		s.LastPage,
		s.PagesFetched,
		s.Records,
		s.PersistErrors,
		s.ProxyRotations,
		string(s.StopReason),
		string(outcomes),
		s.OutputFile,
		s.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE comments SET run_id = ? WHERE target_id = ? AND run_id IS NULL`,
		s.RunID, s.TargetID,
	); err != nil {
		return fmt.Errorf("failed to tag comments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `run_id, target_id, started_at, finished_at, start_page, last_page, pages_fetched,
	records, persist_errors, proxy_rotations, stop_reason, outcomes, output_file, error`

// RecentRuns returns the latest runs of every target, newest first.
func (h *HistoryDB) RecentRuns(ctx context.Context, limit int) ([]*model.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs ORDER BY started_at DESC LIMIT ?`
	return h.queryRuns(ctx, query, limitOrAll(limit))
}

// RunsForTarget returns the runs of one target, newest first.
func (h *HistoryDB) RunsForTarget(ctx context.Context, targetID string, limit int) ([]*model.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs WHERE target_id = ? ORDER BY started_at DESC LIMIT ?`
	return h.queryRuns(ctx, query, targetID, limitOrAll(limit))
}

// CommentCount returns how many comments are mirrored for a target.
func (h *HistoryDB) CommentCount(ctx context.Context, targetID string) (int, error) {
	var n int
	err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE target_id = ?`, targetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}

// CommentsForRun returns the comments stored by one run in insertion order.
func (h *HistoryDB) CommentsForRun(ctx context.Context, runID string) ([]model.Comment, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT title, update_time, read_count, reply_count, author, post_url
	FROM comments WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		var c model.Comment
		var read, reply, author, postURL sql.NullString
		if err := rows.Scan(&c.Title, &c.UpdateTime, &read, &reply, &author, &postURL); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.ReadCount, c.ReplyCount, c.Author, c.PostURL = read.String, reply.String, author.String, postURL.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (h *HistoryDB) queryRuns(ctx context.Context, query string, args ...any) ([]*model.RunSummary, error) {
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.RunSummary
	for rows.Next() {
		var (
			s                          model.RunSummary
			startedAt, finishedAt      sql.NullString
			stopReason, outcomes       sql.NullString
			outputFile, errorMessage   sql.NullString
			startPage, lastPage, pages sql.NullInt64
			records, persistErrors     sql.NullInt64
			rotations                  sql.NullInt64
		)
		if err := rows.Scan(&s.RunID, &s.TargetID, &startedAt, &finishedAt, &startPage, &lastPage, &pages,
			&records, &persistErrors, &rotations, &stopReason, &outcomes, &outputFile, &errorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		s.StartedAt = parseTimestamp(startedAt.String)
		s.FinishedAt = parseTimestamp(finishedAt.String)
		s.StartPage = int(startPage.Int64)
		s.LastPage = int(lastPage.Int64)
		s.PagesFetched = int(pages.Int64)
		s.Records = int(records.Int64)
		s.PersistErrors = int(persistErrors.Int64)
		s.ProxyRotations = int(rotations.Int64)
		s.StopReason = model.StopReason(stopReason.String)
		s.OutputFile = outputFile.String
		s.Error = errorMessage.String
		s.Outcomes = make(map[string]int)
		if outcomes.String != "" {
			if err := json.Unmarshal([]byte(outcomes.String), &s.Outcomes); err != nil {
				s.Outcomes = make(map[string]int)
			}
		}
		runs = append(runs, &s)
	}
	return runs, rows.Err()
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// timestampLayout is fixed width so stored values sort chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// More specific formats come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries every known format and returns the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
