/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements timeline.Store and timeline.WorkItemStore using SQLite. The
  store is deliberately dumb: it persists whatever plan it is given and
  enforces none of the timeline invariants.

INTERFACES IMPLEMENTED:
  timeline.Store:         Slice reads and atomic plan application
  timeline.WorkItemStore: Work item records

ATOMIC PLANS:
  Apply() runs every op of an EditPlan inside one SQL transaction. An
  update or delete that matches no row aborts the whole plan, so a reader
  never observes a half-applied plan.

KEY TABLES:
  slices:     One row per slice; end_at NULL for the open slice
  work_items: What slices are booked to

TIME ENCODING:
  Instants are stored as fixed-width UTC text (timeLayout) so string
  comparison in SQL orders them correctly.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/timeline.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := timeline.NewService(store, timeline.Config{GranularityMinutes: 5})

SEE ALSO:
  - timeline/store.go: Interface definitions
  - timeline/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/timeline-engine/timeline"
)

// timeLayout is fixed width in UTC so text order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the timeline storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS work_items (
		id TEXT PRIMARY KEY,
		item_key TEXT,
		summary TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS slices (
		id TEXT PRIMARY KEY,
		work_item_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT,
		note TEXT,
		sync_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Day loads (hot path)
	CREATE INDEX IF NOT EXISTS idx_slices_start
		ON slices(start_at);

	-- Open slice lookup
	CREATE INDEX IF NOT EXISTS idx_slices_open
		ON slices(start_at) WHERE end_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_slices_work_item
		ON slices(work_item_id, start_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SLICE STORE (timeline.Store interface)
// =============================================================================

const sliceColumns = `id, work_item_id, start_at, end_at, note, sync_json`

// LoadRange returns slices overlapping [from, to). Open slices overlap when
// they start before to.
func (s *Store) LoadRange(ctx context.Context, from, to time.Time) ([]timeline.Slice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + sliceColumns + `
		FROM slices
		WHERE start_at < ? AND (end_at IS NULL OR end_at > ?)
		ORDER BY start_at ASC, id ASC
	`
	return s.querySlices(ctx, query, formatTime(to), formatTime(from))
}

// Load returns a single slice.
func (s *Store) Load(ctx context.Context, id timeline.SliceID) (timeline.Slice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slices, err := s.querySlices(ctx, `SELECT `+sliceColumns+` FROM slices WHERE id = ?`, id)
	if err != nil {
		return timeline.Slice{}, err
	}
	if len(slices) == 0 {
		return timeline.Slice{}, timeline.ErrSliceNotFound
	}
	return slices[0], nil
}

// OpenSlice returns the running slice, or nil.
func (s *Store) OpenSlice(ctx context.Context) (*timeline.Slice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slices, err := s.querySlices(ctx, `
		SELECT `+sliceColumns+`
		FROM slices
		WHERE end_at IS NULL
		ORDER BY start_at DESC
		LIMIT 1
	`)
	if err != nil || len(slices) == 0 {
		return nil, err
	}
	return &slices[0], nil
}

// Apply executes the plan inside one transaction.
func (s *Store) Apply(ctx context.Context, plan timeline.EditPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := formatTime(time.Now())
	for i, op := range plan.Ops {
		if err := applyOp(ctx, sqlTx, op, now); err != nil {
			return fmt.Errorf("op %d %s: %w", i, op, err)
		}
	}

	return sqlTx.Commit()
}

func applyOp(ctx context.Context, tx *sql.Tx, op timeline.Op, now string) error {
	sl := op.Slice
	switch op.Kind {
	case timeline.OpDelete:
		res, err := tx.ExecContext(ctx, `DELETE FROM slices WHERE id = ?`, sl.ID)
		if err != nil {
			return err
		}
		return expectOneRow(res)

	case timeline.OpUpdate:
		syncJSON, err := marshalSync(sl.Sync)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE slices
			SET work_item_id = ?, start_at = ?, end_at = ?, note = ?, sync_json = ?, updated_at = ?
			WHERE id = ?
		`, sl.WorkItemID, formatTime(sl.Start), formatEnd(sl.End), nullString(sl.Note), syncJSON, now, sl.ID)
		if err != nil {
			return err
		}
		return expectOneRow(res)

	case timeline.OpCreate:
		syncJSON, err := marshalSync(sl.Sync)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO slices (`+sliceColumns+`, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sl.ID, sl.WorkItemID, formatTime(sl.Start), formatEnd(sl.End), nullString(sl.Note), syncJSON, now, now)
		if isUniqueConstraintError(err) {
			return timeline.ErrDuplicateSlice
		}
		return err

	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return timeline.ErrSliceNotFound
	}
	return nil
}

func (s *Store) querySlices(ctx context.Context, query string, args ...any) ([]timeline.Slice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query slices: %w", err)
	}
	defer rows.Close()

	var slices []timeline.Slice
	for rows.Next() {
		sl, err := scanSlice(rows)
		if err != nil {
			return nil, err
		}
		slices = append(slices, sl)
	}

	return slices, rows.Err()
}

func scanSlice(rows *sql.Rows) (timeline.Slice, error) {
	var (
		sl       timeline.Slice
		startAt  string
		endAt    sql.NullString
		note     sql.NullString
		syncJSON sql.NullString
	)

	if err := rows.Scan(&sl.ID, &sl.WorkItemID, &startAt, &endAt, &note, &syncJSON); err != nil {
		return sl, fmt.Errorf("failed to scan slice: %w", err)
	}

	start, err := parseTime(startAt)
	if err != nil {
		return sl, err
	}
	sl.Start = start
	if endAt.Valid {
		end, err := parseTime(endAt.String)
		if err != nil {
			return sl, err
		}
		sl.End = &end
	}
	sl.Note = note.String

	if syncJSON.Valid && syncJSON.String != "" {
		if err := json.Unmarshal([]byte(syncJSON.String), &sl.Sync); err != nil {
			return sl, fmt.Errorf("failed to decode sync metadata for %s: %w", sl.ID, err)
		}
	}

	return sl, nil
}

// =============================================================================
// WORK ITEM STORE (timeline.WorkItemStore interface)
// =============================================================================

// SaveWorkItem inserts or replaces a work item.
func (s *Store) SaveWorkItem(ctx context.Context, item timeline.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_items (id, item_key, summary, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET item_key = excluded.item_key, summary = excluded.summary
	`, item.ID, nullString(item.Key), nullString(item.Summary), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save work item: %w", err)
	}
	return nil
}

// GetWorkItem returns a work item by ID.
func (s *Store) GetWorkItem(ctx context.Context, id timeline.WorkItemID) (timeline.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		item    timeline.WorkItem
		key     sql.NullString
		summary sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, item_key, summary FROM work_items WHERE id = ?`, id,
	).Scan(&item.ID, &key, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return item, timeline.ErrWorkItemNotFound
	}
	if err != nil {
		return item, fmt.Errorf("failed to get work item: %w", err)
	}
	item.Key = key.String
	item.Summary = summary.String
	return item, nil
}

// ListWorkItems returns all work items ordered by ID.
func (s *Store) ListWorkItems(ctx context.Context) ([]timeline.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, item_key, summary FROM work_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var items []timeline.WorkItem
	for rows.Next() {
		var (
			item    timeline.WorkItem
			key     sql.NullString
			summary sql.NullString
		)
		if err := rows.Scan(&item.ID, &key, &summary); err != nil {
			return nil, err
		}
		item.Key = key.String
		item.Summary = summary.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatEnd(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

func marshalSync(m timeline.SyncMetadata) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync metadata: %w", err)
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
