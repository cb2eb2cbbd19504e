/*
Package postgres implements the storage interfaces on PostgreSQL.

PURPOSE:
  Store for deployments running more than one server process. Stock
  quantities are summed by the database in NUMERIC, and check-and-append
  transactions are serialized per (item, location) with transaction-scoped
  advisory locks instead of a process-wide mutex.

LOCKING:
  WithTx takes pg_advisory_xact_lock on every key it is given, in
  inventory.SortedKeys order, before fn runs. Locks are released on commit
  or rollback. Transactions run at READ COMMITTED, so every statement fn
  issues after the locks are held sees the rows committed by the previous
  holder.

SEE ALSO:
  - pool.go: Pool construction, Querier, schema
  - store/sqlite: Single-instance default
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
)

var (
	_ inventory.TxStore = (*Store)(nil)
	_ inventory.Catalog = (*Store)(nil)
	_ bom.EdgeStore     = (*Store)(nil)
)

// Store implements inventory.TxStore, inventory.Catalog and bom.EdgeStore.
type Store struct {
	ledgerRepo
	pool *pgxpool.Pool
}

// New wraps an existing pool and migrates the schema.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := Migrate(ctx, pool); err != nil {
		return nil, err
	}
	return &Store{ledgerRepo: ledgerRepo{q: pool}, pool: pool}, nil
}

// Open creates the pool from a URL and migrates the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// ledgerRepo implements inventory.Store over a pool or a transaction.
type ledgerRepo struct {
	q Querier
}

func (r ledgerRepo) Append(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	m.Date = inventory.Day(m.Date)
	var reference *string
	if m.Reference != "" {
		reference = &m.Reference
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO stock_movements (item_id, location_id, kind, quantity, event_date, reference, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		m.ItemID, m.LocationID, string(m.Kind), m.Quantity, m.Date, reference, m.CorrelationID,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return inventory.Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

// AppendBatch is only atomic when r.q is a transaction; Store overrides it.
func (r ledgerRepo) AppendBatch(ctx context.Context, ms []inventory.Movement) ([]inventory.Movement, error) {
	saved := make([]inventory.Movement, 0, len(ms))
	for _, m := range ms {
		out, err := r.Append(ctx, m)
		if err != nil {
			return nil, err
		}
		saved = append(saved, out)
	}
	return saved, nil
}

func (r ledgerRepo) Quantity(ctx context.Context, key inventory.StockKey) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM stock_movements
		WHERE item_id = $1 AND location_id = $2`,
		key.ItemID, key.LocationID,
	).Scan(&qty)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum quantity: %w", err)
	}
	return qty, nil
}

func (r ledgerRepo) Totals(ctx context.Context, filter inventory.LevelFilter) ([]inventory.StockTotal, error) {
	var (
		where []string
		args  []any
	)
	if filter.ItemID != nil {
		args = append(args, *filter.ItemID)
		where = append(where, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		where = append(where, fmt.Sprintf("location_id = $%d", len(args)))
	}

	query := "SELECT item_id, location_id, SUM(quantity) FROM stock_movements" +
		whereClause(where) +
		" GROUP BY item_id, location_id ORDER BY item_id, location_id"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	var out []inventory.StockTotal
	for rows.Next() {
		var t inventory.StockTotal
		if err := rows.Scan(&t.Key.ItemID, &t.Key.LocationID, &t.Quantity); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r ledgerRepo) Movements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ItemID != nil {
		add("item_id = $%d", *filter.ItemID)
	}
	if filter.LocationID != nil {
		add("location_id = $%d", *filter.LocationID)
	}
	if filter.Kind != nil {
		add("kind = $%d", string(*filter.Kind))
	}
	if filter.From != nil {
		add("event_date >= $%d", inventory.Day(*filter.From))
	}
	if filter.To != nil {
		add("event_date <= $%d", inventory.Day(*filter.To))
	}
	if filter.CorrelationID != "" {
		add("correlation_id = $%d", filter.CorrelationID)
	}

	query := `SELECT id, item_id, location_id, kind, quantity, event_date, COALESCE(reference, ''), correlation_id, created_at
		FROM stock_movements` + whereClause(where) + " ORDER BY event_date DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var out []inventory.Movement
	for rows.Next() {
		var (
			m    inventory.Movement
			kind string
		)
		if err := rows.Scan(&m.ID, &m.ItemID, &m.LocationID, &kind, &m.Quantity,
			&m.Date, &m.Reference, &m.CorrelationID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Kind = inventory.MovementKind(kind)
		m.Date = inventory.Day(m.Date)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendBatch writes every movement in one transaction.
func (s *Store) AppendBatch(ctx context.Context, ms []inventory.Movement) ([]inventory.Movement, error) {
	var saved []inventory.Movement
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		saved, err = ledgerRepo{q: tx}.AppendBatch(ctx, ms)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// WithTx runs fn in a READ COMMITTED transaction holding an advisory lock per key.
func (s *Store) WithTx(ctx context.Context, keys []inventory.StockKey, fn func(inventory.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, lockKey := range advisoryLockKeys(keys) {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", lockKey); err != nil {
			return fmt.Errorf("lock %s: %w", lockKey, err)
		}
	}

	if err := fn(ledgerRepo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// advisoryLockKeys maps stock keys to lock names in acquisition order.
func advisoryLockKeys(keys []inventory.StockKey) []string {
	sorted := inventory.SortedKeys(keys)
	out := make([]string, len(sorted))
	for i, k := range sorted {
		out[i] = "stock:" + k.String()
	}
	return out
}

// =============================================================================
// BOM EDGES
// =============================================================================

func (s *Store) InsertEdge(ctx context.Context, e bom.Edge) (bom.Edge, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bom_edges (parent_id, component_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		e.ParentID, e.ComponentID, e.Quantity,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return bom.Edge{}, &inventory.DuplicateEdgeError{ParentID: e.ParentID, ComponentID: e.ComponentID}
		}
		return bom.Edge{}, fmt.Errorf("insert bom edge: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *Store) UpdateEdge(ctx context.Context, e bom.Edge) (bom.Edge, error) {
	err := s.pool.QueryRow(ctx, `
		UPDATE bom_edges SET parent_id = $2, component_id = $3, quantity = $4
		WHERE id = $1
		RETURNING created_at`,
		e.ID, e.ParentID, e.ComponentID, e.Quantity,
	).Scan(&e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bom.Edge{}, &inventory.NotFoundError{Kind: "bom edge", ID: int64(e.ID)}
		}
		if isUniqueViolation(err) {
			return bom.Edge{}, &inventory.DuplicateEdgeError{ParentID: e.ParentID, ComponentID: e.ComponentID}
		}
		return bom.Edge{}, fmt.Errorf("update bom edge: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *Store) DeleteEdge(ctx context.Context, id bom.EdgeID) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM bom_edges WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete bom edge: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Edge(ctx context.Context, id bom.EdgeID) (*bom.Edge, error) {
	var e bom.Edge
	err := s.pool.QueryRow(ctx,
		"SELECT id, parent_id, component_id, quantity, created_at FROM bom_edges WHERE id = $1", id,
	).Scan(&e.ID, &e.ParentID, &e.ComponentID, &e.Quantity, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bom edge: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (s *Store) Edges(ctx context.Context, parentID *inventory.ItemID) ([]bom.Edge, error) {
	query := "SELECT id, parent_id, component_id, quantity, created_at FROM bom_edges"
	var args []any
	if parentID != nil {
		query += " WHERE parent_id = $1"
		args = append(args, *parentID)
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bom edges: %w", err)
	}
	defer rows.Close()

	var out []bom.Edge
	for rows.Next() {
		var e bom.Edge
		if err := rows.Scan(&e.ID, &e.ParentID, &e.ComponentID, &e.Quantity, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bom edge: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// CATALOG AND MASTER DATA
// =============================================================================

const itemColumns = "id, name, sku, unit_of_measure, manufactured, reorder_level, cost_price, sale_price, created_at"

func scanItem(row pgx.Row) (inventory.Item, error) {
	var it inventory.Item
	err := row.Scan(&it.ID, &it.Name, &it.SKU, &it.UnitOfMeasure, &it.Manufactured,
		&it.ReorderLevel, &it.CostPrice, &it.SalePrice, &it.CreatedAt)
	it.CreatedAt = it.CreatedAt.UTC()
	return it, err
}

func (s *Store) Item(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx, "SELECT "+itemColumns+" FROM items WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

func (s *Store) Items(ctx context.Context) ([]inventory.Item, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+itemColumns+" FROM items ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []inventory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) SaveItem(ctx context.Context, it inventory.Item) (inventory.Item, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO items (name, sku, unit_of_measure, manufactured, reorder_level, cost_price, sale_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		it.Name, it.SKU, it.UnitOfMeasure, it.Manufactured, it.ReorderLevel, it.CostPrice, it.SalePrice,
	).Scan(&it.ID, &it.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return inventory.Item{}, fmt.Errorf("%w: item name or sku already exists", inventory.ErrDuplicateRecord)
		}
		return inventory.Item{}, fmt.Errorf("insert item: %w", err)
	}
	it.CreatedAt = it.CreatedAt.UTC()
	return it, nil
}

func (s *Store) Location(ctx context.Context, id inventory.LocationID) (*inventory.Location, error) {
	var l inventory.Location
	err := s.pool.QueryRow(ctx, "SELECT id, name, created_at FROM locations WHERE id = $1", id).
		Scan(&l.ID, &l.Name, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return &l, nil
}

func (s *Store) Locations(ctx context.Context) ([]inventory.Location, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, created_at FROM locations ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []inventory.Location
	for rows.Next() {
		var l inventory.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		l.CreatedAt = l.CreatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) SaveLocation(ctx context.Context, l inventory.Location) (inventory.Location, error) {
	err := s.pool.QueryRow(ctx,
		"INSERT INTO locations (name) VALUES ($1) RETURNING id, created_at", l.Name,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return inventory.Location{}, fmt.Errorf("%w: location name %q", inventory.ErrDuplicateRecord, l.Name)
		}
		return inventory.Location{}, fmt.Errorf("insert location: %w", err)
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

func (s *Store) Supplier(ctx context.Context, id inventory.PartyID) (*inventory.Party, error) {
	return s.party(ctx, "suppliers", id)
}

func (s *Store) Customer(ctx context.Context, id inventory.PartyID) (*inventory.Party, error) {
	return s.party(ctx, "customers", id)
}

func (s *Store) Suppliers(ctx context.Context) ([]inventory.Party, error) {
	return s.parties(ctx, "suppliers")
}

func (s *Store) Customers(ctx context.Context) ([]inventory.Party, error) {
	return s.parties(ctx, "customers")
}

func (s *Store) SaveSupplier(ctx context.Context, p inventory.Party) (inventory.Party, error) {
	return s.saveParty(ctx, "suppliers", p)
}

func (s *Store) SaveCustomer(ctx context.Context, p inventory.Party) (inventory.Party, error) {
	return s.saveParty(ctx, "customers", p)
}

func (s *Store) party(ctx context.Context, table string, id inventory.PartyID) (*inventory.Party, error) {
	var p inventory.Party
	err := s.pool.QueryRow(ctx, "SELECT id, name, created_at FROM "+table+" WHERE id = $1", id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) parties(ctx context.Context, table string) ([]inventory.Party, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, created_at FROM "+table+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []inventory.Party
	for rows.Next() {
		var p inventory.Party
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) saveParty(ctx context.Context, table string, p inventory.Party) (inventory.Party, error) {
	err := s.pool.QueryRow(ctx,
		"INSERT INTO "+table+" (name) VALUES ($1) RETURNING id, created_at", p.Name,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return inventory.Party{}, fmt.Errorf("insert %s: %w", table, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// Reset truncates every table and restarts the ID sequences.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE stock_movements, bom_edges, items, locations, suppliers, customers RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	out := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}

// isUniqueViolation reports a unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
