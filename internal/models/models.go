package models

import (
	"context"
	"io/fs"

	"github.com/desertthunder/makin/internal/loader"
	"github.com/desertthunder/makin/internal/orm"
)

// Module is anything that can register itself on the shared connection.
type Module interface {
	Register(ctx context.Context, conn *orm.Conn) error
}

// Field describes one column of a [Definition].
type Field struct {
	Name     string `toml:"name" yaml:"name" json:"name"`
	Type     string `toml:"type" yaml:"type" json:"type"`
	Required bool   `toml:"required" yaml:"required" json:"required"`
	Unique   bool   `toml:"unique" yaml:"unique" json:"unique"`
	Default  any    `toml:"default" yaml:"default" json:"default"`
}

// Definition is the declarative model module read from the models directory.
type Definition struct {
	Name       string  `toml:"name" yaml:"name" json:"name"`
	Table      string  `toml:"table" yaml:"table" json:"table"`
	SoftDelete bool    `toml:"soft_delete" yaml:"soft_delete" json:"soft_delete"`
	Fields     []Field `toml:"fields" yaml:"fields" json:"fields"`
}

// Schema converts the definition for the ORM.
func (d Definition) Schema() orm.Schema {
	s := orm.Schema{
		Name:       d.Name,
		Table:      d.Table,
		SoftDelete: d.SoftDelete,
		Fields:     make([]orm.Field, 0, len(d.Fields)),
	}
	for _, f := range d.Fields {
		s.Fields = append(s.Fields, orm.Field{
			Name:     f.Name,
			Type:     orm.FieldType(f.Type),
			Required: f.Required,
			Unique:   f.Unique,
			Default:  f.Default,
		})
	}
	return s
}

// Register defines the model on conn.
func (d Definition) Register(ctx context.Context, conn *orm.Conn) error {
	return conn.Define(ctx, d.Schema())
}

// Decode reads a [Definition] from a module file. A definition without a name takes the
// file's slug.
func Decode(d loader.Descriptor, data []byte) (Module, error) {
	def, err := loader.Decode[Definition]()(d, data)
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = d.Slug
	}
	return def, nil
}

// Apply registers every model module in dir against conn.
func Apply(ctx context.Context, conn *orm.Conn, fsys fs.FS, dir string, opts ...loader.Option) (*loader.Report, error) {
	return ApplyWith(ctx, conn, fsys, dir, Decode, opts...)
}

// ApplyWith is [Apply] with a custom decoder, for modules that are not plain definitions.
func ApplyWith(ctx context.Context, conn *orm.Conn, fsys fs.FS, dir string, decode loader.DecodeFunc[Module], opts ...loader.Option) (*loader.Report, error) {
	register := func(ctx context.Context, m Module, _ loader.Descriptor) error {
		return m.Register(ctx, conn)
	}
	return loader.LoadAndApply(ctx, fsys, dir, decode, register, opts...)
}
