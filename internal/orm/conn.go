package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/makin/internal/shared"
	"github.com/jmoiron/sqlx"
)

// Conn is the shared ORM connection: a database handle plus the registry of defined models.
type Conn struct {
	db  *sqlx.DB
	now func() time.Time

	mu     sync.RWMutex
	models map[string]*Schema
	order  []string
}

// New wraps db. The schema_models ledger table must exist (see [shared.RunMigrations]).
func New(db *sqlx.DB) *Conn {
	return &Conn{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		models: make(map[string]*Schema),
	}
}

// DB returns the underlying handle.
func (c *Conn) DB() *sqlx.DB {
	return c.db
}

// Driver returns the database driver name.
func (c *Conn) Driver() string {
	return c.db.DriverName()
}

// Close closes the underlying database.
func (c *Conn) Close() error {
	return c.db.Close()
}

// Define validates s, creates its table if missing, records it in the ledger and registers it.
//
// Defining a model name twice fails with [shared.ErrModelConflict]; so does claiming a table
// already owned by another model.
func (c *Conn) Define(ctx context.Context, s Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.models[s.Name]; exists {
		return fmt.Errorf("%w: %q", shared.ErrModelConflict, s.Name)
	}
	for _, other := range c.models {
		if other.Table == s.Table {
			return fmt.Errorf("%w: table %q already claimed by model %q", shared.ErrModelConflict, s.Table, other.Name)
		}
	}

	if _, err := c.db.ExecContext(ctx, createTableSQL(c.Driver(), &s)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.Table, err)
	}
	if err := c.reconcile(ctx, &s); err != nil {
		return err
	}

	if err := c.record(ctx, &s); err != nil {
		return err
	}

	schema := s
	c.models[s.Name] = &schema
	c.order = append(c.order, s.Name)
	return nil
}

// reconcile brings a table left by an earlier definition of s up to date. It is skipped when the
// ledger already holds the checksum of s. Fields missing from the table are added as columns;
// a column whose field was removed fails with [shared.ErrSchemaDrift].
func (c *Conn) reconcile(ctx context.Context, s *Schema) error {
	stored, err := c.storedChecksum(ctx, s.Name)
	if err != nil {
		return err
	}
	if stored == s.Checksum() {
		return nil
	}

	existing, err := c.columns(ctx, s.Table)
	if err != nil {
		return err
	}

	have := map[string]bool{}
	for _, col := range existing {
		have[col] = true
		if isReserved(col) {
			continue
		}
		if _, ok := s.Field(col); !ok {
			return fmt.Errorf("%w: table %s has column %q that model %q no longer defines", shared.ErrSchemaDrift, s.Table, col, s.Name)
		}
	}

	for _, f := range s.Fields {
		if have[f.Name] {
			continue
		}
		for _, stmt := range addColumnSQL(c.Driver(), s, f) {
			if _, err := c.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", s.Table, f.Name, err)
			}
		}
	}
	return nil
}

// storedChecksum returns the ledger checksum for name, or "" when the model was never recorded.
func (c *Conn) storedChecksum(ctx context.Context, name string) (string, error) {
	var checksum string
	err := c.db.GetContext(ctx, &checksum, c.db.Rebind("SELECT checksum FROM schema_models WHERE name = ?"), name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read ledger for model %s: %w", name, err)
	}
	return checksum, nil
}

// columns lists the column names of table.
func (c *Conn) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := c.db.QueryxContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", quote(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	return rows.Columns()
}

// record upserts s into the schema_models ledger.
func (c *Conn) record(ctx context.Context, s *Schema) error {
	now := c.now()
	query := c.db.Rebind(`
		INSERT INTO schema_models (name, table_name, checksum, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			table_name = excluded.table_name,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at
	`)

	if _, err := c.db.ExecContext(ctx, query, s.Name, s.Table, s.Checksum(), now, now); err != nil {
		return fmt.Errorf("failed to record model %s: %w", s.Name, err)
	}
	return nil
}

// Model returns the registered schema for name.
func (c *Conn) Model(name string) (*Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", shared.ErrModelNotFound, name)
	}
	return s, nil
}

// Models returns the registered schemas in definition order.
func (c *Conn) Models() []Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()

	schemas := make([]Schema, 0, len(c.order))
	for _, name := range c.order {
		schemas = append(schemas, *c.models[name])
	}
	return schemas
}

// Repository returns CRUD access to the named model.
func (c *Conn) Repository(name string) (*Repository, error) {
	s, err := c.Model(name)
	if err != nil {
		return nil, err
	}
	return &Repository{conn: c, schema: s}, nil
}
