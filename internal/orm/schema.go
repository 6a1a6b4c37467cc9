// Package orm is a small connection wrapper with a model registry.
//
// Models are defined at runtime from [Schema] values: [Conn.Define] creates the backing
// table if needed, records the schema in the schema_models ledger, and makes a
// [Repository] available under the model name.
package orm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/makin/internal/shared"
)

// FieldType is the logical type of a model field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeTime   FieldType = "time"
	TypeJSON   FieldType = "json"
)

// Columns every model table carries in addition to its own fields.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnDeletedAt = "deleted_at"
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Field describes one column of a model.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Unique   bool      `json:"unique,omitempty"`
	Default  any       `json:"default,omitempty"`
}

// Schema describes a persisted entity.
type Schema struct {
	Name       string  `json:"name"`
	Table      string  `json:"table"`
	Fields     []Field `json:"fields"`
	SoftDelete bool    `json:"soft_delete,omitempty"`
}

// Validate checks names and types. Table defaults to Name + "s".
func (s *Schema) Validate() error {
	if !identifier.MatchString(s.Name) {
		return fmt.Errorf("%w: invalid model name %q", shared.ErrValidation, s.Name)
	}
	if s.Table == "" {
		s.Table = s.Name + "s"
	}
	if !identifier.MatchString(s.Table) {
		return fmt.Errorf("%w: invalid table name %q", shared.ErrValidation, s.Table)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: model %q has no fields", shared.ErrValidation, s.Name)
	}

	seen := map[string]bool{}
	for _, f := range s.Fields {
		if !identifier.MatchString(f.Name) {
			return fmt.Errorf("%w: invalid field name %q", shared.ErrValidation, f.Name)
		}
		if isReserved(f.Name) {
			return fmt.Errorf("%w: field name %q is reserved", shared.ErrValidation, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", shared.ErrValidation, f.Name)
		}
		seen[f.Name] = true

		switch f.Type {
		case TypeString, TypeInt, TypeFloat, TypeBool, TypeTime, TypeJSON:
		default:
			return fmt.Errorf("%w: %q on field %q", shared.ErrUnsupportedType, f.Type, f.Name)
		}
	}
	return nil
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Checksum identifies the shape of the schema in the schema_models ledger.
func (s *Schema) Checksum() string {
	data, _ := json.Marshal(s)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isReserved(name string) bool {
	switch name {
	case ColumnID, ColumnCreatedAt, ColumnUpdatedAt, ColumnDeletedAt:
		return true
	}
	return false
}

// columnType maps a field type to the column type for driver.
func columnType(driver string, t FieldType) string {
	pg := driver == shared.DriverPostgres
	switch t {
	case TypeInt:
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case TypeFloat:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case TypeBool:
		return "BOOLEAN"
	case TypeTime:
		if pg {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	case TypeJSON:
		if pg {
			return "JSONB"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// createTableSQL renders the DDL for s.
func createTableSQL(driver string, s *Schema) string {
	ts := columnType(driver, TypeTime)

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quote(s.Table))
	fmt.Fprintf(&b, "\t%s TEXT PRIMARY KEY", quote(ColumnID))
	for _, f := range s.Fields {
		fmt.Fprintf(&b, ",\n\t%s %s", quote(f.Name), columnType(driver, f.Type))
		if f.Required {
			b.WriteString(" NOT NULL")
		}
		if f.Unique {
			b.WriteString(" UNIQUE")
		}
	}
	fmt.Fprintf(&b, ",\n\t%s %s NOT NULL", quote(ColumnCreatedAt), ts)
	fmt.Fprintf(&b, ",\n\t%s %s NOT NULL", quote(ColumnUpdatedAt), ts)
	fmt.Fprintf(&b, ",\n\t%s %s NULL", quote(ColumnDeletedAt), ts)
	b.WriteString("\n)")
	return b.String()
}

// addColumnSQL renders the statements that add f to an existing table. The column is nullable
// since existing rows have no value for it; required is enforced by [Repository] writes.
func addColumnSQL(driver string, s *Schema, f Field) []string {
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(s.Table), quote(f.Name), columnType(driver, f.Type)),
	}
	if f.Unique {
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			quote(s.Table+"_"+f.Name+"_key"), quote(s.Table), quote(f.Name)))
	}
	return stmts
}

// quote renders a validated identifier as a quoted SQL name, so keywords like "order" work as
// field and table names on both drivers.
func quote(name string) string {
	return `"` + name + `"`
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}
