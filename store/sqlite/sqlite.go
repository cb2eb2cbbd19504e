/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Default store for single-instance deployments. Implements movement
  persistence, BOM edges and the master data the engine looks up.

INTERFACES IMPLEMENTED:
  inventory.TxStore:  Movement persistence with transactional check-and-append
  inventory.Catalog:  Item, location, supplier, customer lookups
  bom.EdgeStore:      BOM edge persistence

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on stock_movements
  - No DELETE statements on stock_movements (except Reset)
  - Corrections via adjustment movements only

KEY TABLES:
  stock_movements: Immutable ledger of every stock change
  bom_edges:       Parent -> component links (UNIQUE pair, CHECK no self-loop)
  items, locations, suppliers, customers: Master records

QUANTITIES:
  Stored as TEXT via decimal.String() and summed in Go. SQLite's SUM()
  works on doubles and would reintroduce float drift.

CONCURRENCY:
  SQLite has a single writer. The pool is capped at one connection and
  sync.RWMutex serializes writers, so WithTx covers every (item, location)
  pair regardless of the keys it is given.

WAL MODE:
  Opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - inventory/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
  - store/postgres: Multi-instance implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: a second one would see a different ":memory:" database.
	db.SetMaxOpenConns(1)

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
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		sku TEXT NOT NULL UNIQUE COLLATE NOCASE,
		unit_of_measure TEXT NOT NULL DEFAULT '',
		manufactured INTEGER NOT NULL DEFAULT 0,
		reorder_level TEXT NOT NULL DEFAULT '0',
		cost_price TEXT NOT NULL DEFAULT '0',
		sale_price TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Stock movements (append-only ledger)
	CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id),
		location_id INTEGER NOT NULL REFERENCES locations(id),
		kind TEXT NOT NULL,
		quantity TEXT NOT NULL,
		event_date TEXT NOT NULL,
		reference TEXT,
		correlation_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Quantity derivation (hot path)
	CREATE INDEX IF NOT EXISTS idx_movements_item_location
		ON stock_movements(item_id, location_id);

	-- History queries: event date desc, creation desc
	CREATE INDEX IF NOT EXISTS idx_movements_date
		ON stock_movements(event_date DESC, id DESC);

	CREATE INDEX IF NOT EXISTS idx_movements_correlation
		ON stock_movements(correlation_id);

	-- BOM edges
	CREATE TABLE IF NOT EXISTS bom_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER NOT NULL REFERENCES items(id),
		component_id INTEGER NOT NULL REFERENCES items(id),
		quantity TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (parent_id, component_id),
		CHECK (parent_id <> component_id)
	);

	CREATE INDEX IF NOT EXISTS idx_bom_edges_parent
		ON bom_edges(parent_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MOVEMENT STORE (inventory.Store interface)
// =============================================================================

// Append adds a movement to the ledger.
func (s *Store) Append(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendMovement(ctx, s.db, m)
}

// AppendBatch adds multiple movements atomically.
func (s *Store) AppendBatch(ctx context.Context, ms []inventory.Movement) ([]inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	saved, err := appendMovements(ctx, sqlTx, ms)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return saved, nil
}

func (s *Store) Quantity(ctx context.Context, key inventory.StockKey) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return quantity(ctx, s.db, key)
}

func (s *Store) Totals(ctx context.Context, filter inventory.LevelFilter) ([]inventory.StockTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return totals(ctx, s.db, filter)
}

func (s *Store) Movements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryMovements(ctx, s.db, filter)
}

func appendMovement(ctx context.Context, q querier, m inventory.Movement) (inventory.Movement, error) {
	m.Date = inventory.Day(m.Date)
	m.CreatedAt = time.Now().UTC()

	res, err := q.ExecContext(ctx, `
		INSERT INTO stock_movements
		(item_id, location_id, kind, quantity, event_date, reference, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ItemID,
		m.LocationID,
		string(m.Kind),
		m.Quantity.String(),
		m.Date.Format(inventory.DateLayout),
		nullString(m.Reference),
		m.CorrelationID,
		m.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return inventory.Movement{}, fmt.Errorf("failed to append movement: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Movement{}, fmt.Errorf("failed to read movement id: %w", err)
	}
	m.ID = inventory.MovementID(id)
	return m, nil
}

func appendMovements(ctx context.Context, q querier, ms []inventory.Movement) ([]inventory.Movement, error) {
	saved := make([]inventory.Movement, 0, len(ms))
	for _, m := range ms {
		out, err := appendMovement(ctx, q, m)
		if err != nil {
			return nil, err
		}
		saved = append(saved, out)
	}
	return saved, nil
}

func quantity(ctx context.Context, q querier, key inventory.StockKey) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT quantity FROM stock_movements WHERE item_id = ? AND location_id = ?",
		key.ItemID, key.LocationID,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query quantity: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan quantity: %w", err)
		}
		sum = sum.Add(v)
	}
	return sum, rows.Err()
}

func totals(ctx context.Context, q querier, filter inventory.LevelFilter) ([]inventory.StockTotal, error) {
	query := "SELECT item_id, location_id, quantity FROM stock_movements WHERE 1=1"
	var args []any
	if filter.ItemID != nil {
		query += " AND item_id = ?"
		args = append(args, *filter.ItemID)
	}
	if filter.LocationID != nil {
		query += " AND location_id = ?"
		args = append(args, *filter.LocationID)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	var ms []inventory.Movement
	for rows.Next() {
		var m inventory.Movement
		if err := rows.Scan(&m.ItemID, &m.LocationID, &m.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan quantity: %w", err)
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return inventory.SumByKey(ms, filter), nil
}

func queryMovements(ctx context.Context, q querier, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	query := `
		SELECT id, item_id, location_id, kind, quantity, event_date, reference, correlation_id, created_at
		FROM stock_movements
		WHERE 1=1`
	var args []any
	if filter.ItemID != nil {
		query += " AND item_id = ?"
		args = append(args, *filter.ItemID)
	}
	if filter.LocationID != nil {
		query += " AND location_id = ?"
		args = append(args, *filter.LocationID)
	}
	if filter.Kind != nil {
		query += " AND kind = ?"
		args = append(args, string(*filter.Kind))
	}
	if filter.From != nil {
		query += " AND event_date >= ?"
		args = append(args, inventory.Day(*filter.From).Format(inventory.DateLayout))
	}
	if filter.To != nil {
		query += " AND event_date <= ?"
		args = append(args, inventory.Day(*filter.To).Format(inventory.DateLayout))
	}
	if filter.CorrelationID != "" {
		query += " AND correlation_id = ?"
		args = append(args, filter.CorrelationID)
	}
	query += " ORDER BY event_date DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []inventory.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanMovement(rows *sql.Rows) (inventory.Movement, error) {
	var (
		m         inventory.Movement
		kind      string
		eventDate string
		reference sql.NullString
		createdAt string
	)

	err := rows.Scan(&m.ID, &m.ItemID, &m.LocationID, &kind, &m.Quantity,
		&eventDate, &reference, &m.CorrelationID, &createdAt)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}

	m.Kind = inventory.MovementKind(kind)
	m.Reference = reference.String
	if m.Date, err = time.Parse(inventory.DateLayout, eventDate); err != nil {
		return m, fmt.Errorf("movement %d: bad event_date: %w", m.ID, err)
	}
	if m.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return m, fmt.Errorf("movement %d: %w", m.ID, err)
	}
	return m, nil
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Every read fn makes goes
// through the same transaction, so the quantity it checks is the quantity it
// appends against.
func (s *Store) WithTx(ctx context.Context, _ []inventory.StockKey, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	return appendMovement(ctx, ts.tx, m)
}

func (ts *txStore) AppendBatch(ctx context.Context, ms []inventory.Movement) ([]inventory.Movement, error) {
	return appendMovements(ctx, ts.tx, ms)
}

func (ts *txStore) Quantity(ctx context.Context, key inventory.StockKey) (decimal.Decimal, error) {
	return quantity(ctx, ts.tx, key)
}

func (ts *txStore) Totals(ctx context.Context, filter inventory.LevelFilter) ([]inventory.StockTotal, error) {
	return totals(ctx, ts.tx, filter)
}

func (ts *txStore) Movements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	return queryMovements(ctx, ts.tx, filter)
}

// =============================================================================
// BOM EDGE STORE (bom.EdgeStore interface)
// =============================================================================

func (s *Store) InsertEdge(ctx context.Context, e bom.Edge) (bom.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bom_edges (parent_id, component_id, quantity, created_at)
		VALUES (?, ?, ?, ?)
	`, e.ParentID, e.ComponentID, e.Quantity.String(), e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return bom.Edge{}, &inventory.DuplicateEdgeError{ParentID: e.ParentID, ComponentID: e.ComponentID}
		}
		return bom.Edge{}, fmt.Errorf("failed to insert bom edge: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return bom.Edge{}, err
	}
	e.ID = bom.EdgeID(id)
	return e, nil
}

func (s *Store) UpdateEdge(ctx context.Context, e bom.Edge) (bom.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE bom_edges SET parent_id = ?, component_id = ?, quantity = ?
		WHERE id = ?
	`, e.ParentID, e.ComponentID, e.Quantity.String(), e.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return bom.Edge{}, &inventory.DuplicateEdgeError{ParentID: e.ParentID, ComponentID: e.ComponentID}
		}
		return bom.Edge{}, fmt.Errorf("failed to update bom edge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bom.Edge{}, &inventory.NotFoundError{Kind: "bom edge", ID: int64(e.ID)}
	}

	updated, err := s.getEdge(ctx, e.ID)
	if err != nil {
		return bom.Edge{}, err
	}
	return *updated, nil
}

func (s *Store) DeleteEdge(ctx context.Context, id bom.EdgeID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM bom_edges WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete bom edge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Edge retrieves an edge by ID.
func (s *Store) Edge(ctx context.Context, id bom.EdgeID) (*bom.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getEdge(ctx, id)
}

func (s *Store) getEdge(ctx context.Context, id bom.EdgeID) (*bom.Edge, error) {
	var (
		e         bom.Edge
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, parent_id, component_id, quantity, created_at FROM bom_edges WHERE id = ?",
		id,
	).Scan(&e.ID, &e.ParentID, &e.ComponentID, &e.Quantity, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("bom edge %d: %w", e.ID, err)
	}
	return &e, nil
}

func (s *Store) Edges(ctx context.Context, parentID *inventory.ItemID) ([]bom.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, parent_id, component_id, quantity, created_at FROM bom_edges"
	var args []any
	if parentID != nil {
		query += " WHERE parent_id = ?"
		args = append(args, *parentID)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bom edges: %w", err)
	}
	defer rows.Close()

	var edges []bom.Edge
	for rows.Next() {
		var (
			e         bom.Edge
			createdAt string
			err       error
		)
		if err = rows.Scan(&e.ID, &e.ParentID, &e.ComponentID, &e.Quantity, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan bom edge: %w", err)
		}
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("bom edge %d: %w", e.ID, err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// =============================================================================
// CATALOG (inventory.Catalog interface)
// =============================================================================

const itemColumns = "id, name, sku, unit_of_measure, manufactured, reorder_level, cost_price, sale_price, created_at"

// Item retrieves an item by ID.
func (s *Store) Item(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) Location(ctx context.Context, id inventory.LocationID) (*inventory.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		l         inventory.Location
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM locations WHERE id = ?", id,
	).Scan(&l.ID, &l.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if l.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("location %d: %w", l.ID, err)
	}
	return &l, nil
}

func (s *Store) Supplier(ctx context.Context, id inventory.PartyID) (*inventory.Party, error) {
	return s.party(ctx, "suppliers", id)
}

func (s *Store) Customer(ctx context.Context, id inventory.PartyID) (*inventory.Party, error) {
	return s.party(ctx, "customers", id)
}

func (s *Store) party(ctx context.Context, table string, id inventory.PartyID) (*inventory.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p         inventory.Party
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM "+table+" WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("%s %d: %w", table, p.ID, err)
	}
	return &p, nil
}

// =============================================================================
// MASTER DATA WRITES
// =============================================================================

// SaveItem inserts an item. Name and SKU are unique (case-insensitive).
func (s *Store) SaveItem(ctx context.Context, it inventory.Item) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (name, sku, unit_of_measure, manufactured, reorder_level, cost_price, sale_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		it.Name, it.SKU, it.UnitOfMeasure, it.Manufactured,
		it.ReorderLevel.String(), it.CostPrice.String(), it.SalePrice.String(),
		it.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return inventory.Item{}, fmt.Errorf("%w: item name or sku already exists", inventory.ErrDuplicateRecord)
		}
		return inventory.Item{}, fmt.Errorf("failed to save item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Item{}, err
	}
	it.ID = inventory.ItemID(id)
	return it, nil
}

// Items returns all items ordered by name.
func (s *Store) Items(ctx context.Context) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+itemColumns+" FROM items ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) SaveLocation(ctx context.Context, l inventory.Location) (inventory.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO locations (name, created_at) VALUES (?, ?)",
		l.Name, l.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return inventory.Location{}, fmt.Errorf("%w: location name %q", inventory.ErrDuplicateRecord, l.Name)
		}
		return inventory.Location{}, fmt.Errorf("failed to save location: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Location{}, err
	}
	l.ID = inventory.LocationID(id)
	return l, nil
}

func (s *Store) Locations(ctx context.Context) ([]inventory.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM locations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []inventory.Location
	for rows.Next() {
		var (
			l         inventory.Location
			createdAt string
			err       error
		)
		if err = rows.Scan(&l.ID, &l.Name, &createdAt); err != nil {
			return nil, err
		}
		if l.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("location %d: %w", l.ID, err)
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

func (s *Store) SaveSupplier(ctx context.Context, p inventory.Party) (inventory.Party, error) {
	return s.saveParty(ctx, "suppliers", p)
}

func (s *Store) Suppliers(ctx context.Context) ([]inventory.Party, error) {
	return s.listParties(ctx, "suppliers")
}

func (s *Store) SaveCustomer(ctx context.Context, p inventory.Party) (inventory.Party, error) {
	return s.saveParty(ctx, "customers", p)
}

func (s *Store) Customers(ctx context.Context) ([]inventory.Party, error) {
	return s.listParties(ctx, "customers")
}

func (s *Store) saveParty(ctx context.Context, table string, p inventory.Party) (inventory.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO "+table+" (name, created_at) VALUES (?, ?)",
		p.Name, p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return inventory.Party{}, fmt.Errorf("failed to save %s: %w", strings.TrimSuffix(table, "s"), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Party{}, err
	}
	p.ID = inventory.PartyID(id)
	return p, nil
}

func (s *Store) listParties(ctx context.Context, table string) ([]inventory.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM "+table+" ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parties []inventory.Party
	for rows.Next() {
		var (
			p         inventory.Party
			createdAt string
			err       error
		)
		if err = rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("%s %d: %w", table, p.ID, err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data and restarts ID sequences (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"stock_movements", "bom_edges", "items", "locations", "suppliers", "customers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence")
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (inventory.Item, error) {
	var (
		it      inventory.Item
		created string
	)
	err := row.Scan(&it.ID, &it.Name, &it.SKU, &it.UnitOfMeasure, &it.Manufactured,
		&it.ReorderLevel, &it.CostPrice, &it.SalePrice, &created)
	if err != nil {
		return it, err
	}
	if it.CreatedAt, err = parseTimestamp(created); err != nil {
		return it, fmt.Errorf("item %d: %w", it.ID, err)
	}
	return it, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad created_at %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
