// Package store manages all SQLite persistence for hlcmail.
//
// Every node on a host opens the same SQLite file in WAL mode. The database
// is the message channel: a send is an insert, a receive is a query for rows
// targeted at the caller, and each node's last clock stamp lives next to the
// log so a fresh process resumes exactly where the previous one stopped.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
	"github.com/daviddao/hlcmail/pkg/order"
	"github.com/daviddao/hlcmail/pkg/physical"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a node does not exist.
var ErrNotFound = errors.New("not found")

const defaultLimit = 100

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// SetNow replaces the wall clock used for registration and liveness times.
func (s *Store) SetNow(now func() time.Time) { s.now = now }

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id          TEXT PRIMARY KEY,
		hlc_ts      INTEGER NOT NULL DEFAULT 0,
		hlc_counter INTEGER NOT NULL DEFAULT 0,
		registered  TEXT NOT NULL,
		last_seen   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		msg_id      TEXT,
		node_id     TEXT NOT NULL REFERENCES nodes(id),
		hlc_ts      INTEGER NOT NULL,
		hlc_counter INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		target      TEXT,
		body        TEXT,
		created_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_stamp ON events(hlc_ts, hlc_counter, node_id);
	CREATE INDEX IF NOT EXISTS idx_events_target ON events(target, kind, id);

	CREATE TABLE IF NOT EXISTS cursors (
		node_id  TEXT PRIMARY KEY REFERENCES nodes(id),
		since_id INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

// RegisterNode creates a node at the start of time, or refreshes last_seen
// if it already exists. A re-registered node keeps its stamp.
func (s *Store) RegisterNode(ctx context.Context, id string) (*model.Node, error) {
	now := s.timestamp()
	err := retryOnContention(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO nodes (id, hlc_ts, hlc_counter, registered, last_seen)
			 VALUES (?, 0, 0, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen`,
			id, now, now,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("register node %s: %w", id, err)
	}
	return s.GetNode(ctx, id)
}

// GetNode retrieves a node by ID.
func (s *Store) GetNode(ctx context.Context, id string) (*model.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, hlc_ts, hlc_counter, registered, last_seen FROM nodes WHERE id = ?`, id,
	)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return n, err
}

// LoadClock returns the node's persisted clock bound to the local source.
func (s *Store) LoadClock(ctx context.Context, id string, src physical.Source) (hlc.Clock, error) {
	n, err := s.GetNode(ctx, id)
	if err != nil {
		return hlc.Clock{}, err
	}
	return hlc.Rebind(n.Stamp, src), nil
}

// UpdateNodeStamp persists a node's clock and marks it alive. The stored
// stamp never moves backwards: a stale write loses to the one already there.
func (s *Store) UpdateNodeStamp(ctx context.Context, id string, stamp hlc.Stamp) error {
	if err := stamp.Validate(); err != nil {
		return err
	}
	now := s.timestamp()
	var affected int64
	err := retryOnContention(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE nodes SET
			   hlc_counter = CASE WHEN hlc_ts < ?1 OR (hlc_ts = ?1 AND hlc_counter < ?2) THEN ?2 ELSE hlc_counter END,
			   hlc_ts      = CASE WHEN hlc_ts < ?1 THEN ?1 ELSE hlc_ts END,
			   last_seen   = ?3
			 WHERE id = ?4`,
			int64(stamp.Timestamp), int64(stamp.Counter), now, id,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update stamp for %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}

// TransitionClock applies next to the node's persisted clock and stores the
// result, as one compare-and-swap on the node's row: if another process
// moved the stamp in between, the clock is reloaded and next runs again.
// Concurrent transitions of one node therefore never return the same stamp.
// next must be pure and return a clock greater than its argument.
func (s *Store) TransitionClock(ctx context.Context, id string, src physical.Source, next func(hlc.Clock) hlc.Clock) (hlc.Clock, error) {
	for {
		cur, err := s.LoadClock(ctx, id, src)
		if err != nil {
			return hlc.Clock{}, err
		}
		n := next(cur)
		old, stamp := cur.Stamp(), n.Stamp()
		if stamp.Compare(old) != order.GreaterThan {
			return hlc.Clock{}, fmt.Errorf("transition for %s: %s does not advance %s", id, stamp, old)
		}
		now := s.timestamp()
		var affected int64
		err = retryOnContention(ctx, func() error {
			res, err := s.db.ExecContext(ctx,
				`UPDATE nodes SET hlc_ts = ?, hlc_counter = ?, last_seen = ?
				 WHERE id = ? AND hlc_ts = ? AND hlc_counter = ?`,
				int64(stamp.Timestamp), int64(stamp.Counter), now,
				id, int64(old.Timestamp), int64(old.Counter),
			)
			if err != nil {
				return err
			}
			affected, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return hlc.Clock{}, fmt.Errorf("transition for %s: %w", id, err)
		}
		if affected == 1 {
			return n, nil
		}
		// Lost the race; someone else advanced the row.
		if err := ctx.Err(); err != nil {
			return hlc.Clock{}, err
		}
	}
}

// ListNodes returns all registered nodes ordered by ID.
func (s *Store) ListNodes(ctx context.Context) ([]model.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hlc_ts, hlc_counter, registered, last_seen FROM nodes ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// GetActiveStamps returns the stamp of every node seen within window, the
// input to the stability watermark.
func (s *Store) GetActiveStamps(ctx context.Context, window time.Duration) ([]model.NodeStamp, error) {
	nodes, err := s.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-window)
	var active []model.NodeStamp
	for _, n := range nodes {
		if n.LastSeen.After(cutoff) {
			active = append(active, model.NodeStamp{NodeID: n.ID, Stamp: n.Stamp})
		}
	}
	return active, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*model.Node, error) {
	var n model.Node
	var ts int64
	var counter int64
	var regStr, lsStr string
	if err := row.Scan(&n.ID, &ts, &counter, &regStr, &lsStr); err != nil {
		return nil, err
	}
	n.Stamp = hlc.Stamp{Timestamp: physical.Timestamp(ts), Counter: uint32(counter)}
	if err := n.Stamp.Validate(); err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}
	var parseErr error
	n.Registered, parseErr = time.Parse(time.RFC3339Nano, regStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse registered time for node %s: %w", n.ID, parseErr)
	}
	n.LastSeen, parseErr = time.Parse(time.RFC3339Nano, lsStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse last_seen time for node %s: %w", n.ID, parseErr)
	}
	return &n, nil
}

// ---------------------------------------------------------------------------
// Cursors
// ---------------------------------------------------------------------------

// GetCursor returns the last event row ID a node has received (0 if unset).
func (s *Store) GetCursor(ctx context.Context, nodeID string) int64 {
	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT since_id FROM cursors WHERE node_id = ?`, nodeID,
	).Scan(&id); err != nil {
		return 0
	}
	return id
}

// SetCursor records the last event row ID a node has received.
func (s *Store) SetCursor(ctx context.Context, nodeID string, sinceID int64) error {
	return retryOnContention(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO cursors (node_id, since_id) VALUES (?, ?)
			 ON CONFLICT(node_id) DO UPDATE SET since_id = excluded.since_id`,
			nodeID, sinceID,
		)
		return err
	})
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

const eventColumns = `id, COALESCE(msg_id,''), node_id, hlc_ts, hlc_counter, kind,
		        COALESCE(target,''), COALESCE(body,''), created_at`

// InsertEvent appends an event to the log. Returns the auto-generated row ID.
func (s *Store) InsertEvent(ctx context.Context, e *model.Event) (int64, error) {
	if err := e.Stamp.Validate(); err != nil {
		return 0, err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var lastID int64
	err := retryOnContention(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO events (msg_id, node_id, hlc_ts, hlc_counter, kind, target, body, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.MsgID, e.NodeID, int64(e.Stamp.Timestamp), int64(e.Stamp.Counter), string(e.Kind),
			e.Target, e.Body, created.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		lastID, err = res.LastInsertId()
		return err
	})
	return lastID, err
}

// ListEvents returns events at or after since in the log's total order:
// stamp, then node ID.
func (s *Store) ListEvents(ctx context.Context, since hlc.Stamp, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE hlc_ts > ?1 OR (hlc_ts = ?1 AND hlc_counter >= ?2)
		 ORDER BY hlc_ts ASC, hlc_counter ASC, node_id ASC, id ASC LIMIT ?3`,
		int64(since.Timestamp), int64(since.Counter), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsSinceID returns events with row ID > sinceID, ordered by ID.
// This is the append order, which tails the log without missing rows that
// were written with stamps older than ones already seen.
func (s *Store) ListEventsSinceID(ctx context.Context, sinceID int64, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE id > ?
		 ORDER BY id ASC LIMIT ?`,
		sinceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MaxEventID returns the highest event row ID, or 0 if the log is empty.
func (s *Store) MaxEventID(ctx context.Context) int64 {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM events`).Scan(&id); err != nil {
		return 0
	}
	return id
}

// CountEvents returns the total number of events in the log.
func (s *Store) CountEvents(ctx context.Context) int64 {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// ListEventsForNode returns messages targeted to nodeID with row ID >
// sinceID, in append order.
func (s *Store) ListEventsForNode(ctx context.Context, nodeID string, sinceID int64, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE target = ? AND kind = ? AND id > ?
		 ORDER BY id ASC LIMIT ?`,
		nodeID, string(model.EventMsg), sinceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var ts, counter int64
		var kindStr, createdStr string
		if err := rows.Scan(&e.ID, &e.MsgID, &e.NodeID, &ts, &counter,
			&kindStr, &e.Target, &e.Body, &createdStr); err != nil {
			return nil, err
		}
		e.Stamp = hlc.Stamp{Timestamp: physical.Timestamp(ts), Counter: uint32(counter)}
		if err := e.Stamp.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
		e.Kind = model.EventKind(kindStr)
		var parseErr error
		e.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse created_at time for event %d: %w", e.ID, parseErr)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
