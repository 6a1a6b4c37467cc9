package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/makin/internal/shared"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// SQLSTATE unique_violation
const uniqueViolation = "23505"

// Record is one row of a model, keyed by column name.
type Record map[string]any

// ID returns the record id, or "".
func (r Record) ID() string {
	id, _ := r[ColumnID].(string)
	return id
}

// Repository implements CRUD for one registered model, excluding soft-deleted rows when the
// model uses soft deletes.
type Repository struct {
	conn   *Conn
	schema *Schema
}

// Schema returns the model definition backing the repository.
func (r *Repository) Schema() Schema {
	return *r.schema
}

// Create validates rec, fills defaults, generates an id and timestamps, and inserts it.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, error) {
	values, err := r.prepare(rec, false)
	if err != nil {
		return nil, err
	}

	now := r.conn.now()
	id := shared.GenerateID()

	columns := []string{ColumnID}
	args := []any{id}
	for _, f := range r.schema.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		columns = append(columns, f.Name)
		args = append(args, v)
	}
	columns = append(columns, ColumnCreatedAt, ColumnUpdatedAt)
	args = append(args, now, now)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(r.schema.Table), quoteAll(columns), placeholders(len(columns)))

	if _, err := r.conn.db.ExecContext(ctx, r.conn.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", r.schema.Name, constraintError(err))
	}

	return r.Get(ctx, id)
}

// Get retrieves a record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", r.selectColumns(), quote(r.schema.Table), quote(ColumnID))
	query += r.notDeleted()

	rows, err := r.conn.db.QueryxContext(ctx, r.conn.db.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.schema.Name, err)
	}
	defer rows.Close()

	records, err := r.scan(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s %s", shared.ErrRecordNotFound, r.schema.Name, id)
	}
	return records[0], nil
}

// Update applies the fields present in rec to the record with id.
func (r *Repository) Update(ctx context.Context, id string, rec Record) (Record, error) {
	values, err := r.prepare(rec, true)
	if err != nil {
		return nil, err
	}

	sets := []string{}
	args := []any{}
	for _, f := range r.schema.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		sets = append(sets, quote(f.Name)+" = ?")
		args = append(args, v)
	}
	sets = append(sets, quote(ColumnUpdatedAt)+" = ?")
	args = append(args, r.conn.now(), id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(r.schema.Table), strings.Join(sets, ", "), quote(ColumnID))
	query += r.notDeleted()

	result, err := r.conn.db.ExecContext(ctx, r.conn.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", r.schema.Name, constraintError(err))
	}
	if err := requireRow(result, r.schema.Name, id); err != nil {
		return nil, err
	}

	return r.Get(ctx, id)
}

// Delete removes the record with id, or marks it deleted for soft-delete models.
func (r *Repository) Delete(ctx context.Context, id string) error {
	var (
		query string
		args  []any
	)
	if r.schema.SoftDelete {
		query = fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ? AND %s IS NULL",
			quote(r.schema.Table), quote(ColumnDeletedAt), quote(ColumnID), quote(ColumnDeletedAt))
		args = []any{r.conn.now(), id}
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(r.schema.Table), quote(ColumnID))
		args = []any{id}
	}

	result, err := r.conn.db.ExecContext(ctx, r.conn.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", r.schema.Name, err)
	}
	return requireRow(result, r.schema.Name, id)
}

// List retrieves every record whose fields equal the values in criteria, oldest first.
// Criteria keys must name model fields (or "id").
func (r *Repository) List(ctx context.Context, criteria map[string]any) ([]Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 1", r.selectColumns(), quote(r.schema.Table))
	query += r.notDeleted()

	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []any{}
	for _, k := range keys {
		if k == ColumnID {
			query += " AND " + quote(ColumnID) + " = ?"
			args = append(args, criteria[k])
			continue
		}
		f, ok := r.schema.Field(k)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", shared.ErrValidation, k)
		}
		v, err := coerce(f, criteria[k])
		if err != nil {
			return nil, err
		}
		query += " AND " + quote(f.Name) + " = ?"
		args = append(args, v)
	}
	query += fmt.Sprintf(" ORDER BY %s ASC, %s ASC", quote(ColumnCreatedAt), quote(ColumnID))

	rows, err := r.conn.db.QueryxContext(ctx, r.conn.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.schema.Table, err)
	}
	defer rows.Close()

	return r.scan(rows)
}

// prepare validates rec against the schema. Partial updates skip required checks and defaults.
func (r *Repository) prepare(rec Record, partial bool) (map[string]any, error) {
	for k := range rec {
		if _, ok := r.schema.Field(k); !ok {
			return nil, fmt.Errorf("%w: unknown field %q", shared.ErrValidation, k)
		}
	}

	values := make(map[string]any, len(rec))
	for _, f := range r.schema.Fields {
		raw, present := rec[f.Name]
		if !present && !partial && f.Default != nil {
			raw, present = f.Default, true
		}
		if !present {
			if f.Required && !partial {
				return nil, fmt.Errorf("%w: field %q is required", shared.ErrValidation, f.Name)
			}
			continue
		}

		v, err := coerce(f, raw)
		if err != nil {
			return nil, err
		}
		if v == nil && f.Required {
			return nil, fmt.Errorf("%w: field %q is required", shared.ErrValidation, f.Name)
		}
		values[f.Name] = v
	}
	return values, nil
}

func (r *Repository) selectColumns() string {
	columns := []string{ColumnID}
	for _, f := range r.schema.Fields {
		columns = append(columns, f.Name)
	}
	columns = append(columns, ColumnCreatedAt, ColumnUpdatedAt)
	return quoteAll(columns)
}

func (r *Repository) notDeleted() string {
	if !r.schema.SoftDelete {
		return ""
	}
	return " AND " + quote(ColumnDeletedAt) + " IS NULL"
}

type mapScanner interface {
	Next() bool
	MapScan(dest map[string]any) error
	Err() error
}

func (r *Repository) scan(rows mapScanner) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.schema.Name, err)
		}

		rec := Record{
			ColumnID:        normalize(TypeString, row[ColumnID]),
			ColumnCreatedAt: normalize(TypeTime, row[ColumnCreatedAt]),
			ColumnUpdatedAt: normalize(TypeTime, row[ColumnUpdatedAt]),
		}
		for _, f := range r.schema.Fields {
			rec[f.Name] = normalize(f.Type, row[f.Name])
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func requireRow(result sql.Result, model, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrRecordNotFound, model, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// constraintError wraps unique violations from either driver in [shared.ErrConflict].
func constraintError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

// IsNotFound reports whether err means a missing record or model.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrRecordNotFound) || errors.Is(err, shared.ErrModelNotFound)
}
