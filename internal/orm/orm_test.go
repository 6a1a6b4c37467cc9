package orm

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/makin/internal/shared"
	tu "github.com/desertthunder/makin/internal/testing"
)

// setupTestConn creates a connection over an in-memory database with a deterministic clock.
func setupTestConn(t *testing.T) *Conn {
	t.Helper()

	conn := New(tu.MustDatabase(t))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	conn.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return conn
}

func trackSchema() Schema {
	return Schema{
		Name: "track",
		Fields: []Field{
			{Name: "title", Type: TypeString, Required: true},
			{Name: "artist", Type: TypeString},
			{Name: "plays", Type: TypeInt, Default: 0},
			{Name: "explicit", Type: TypeBool},
			{Name: "meta", Type: TypeJSON},
		},
		SoftDelete: true,
	}
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr error
	}{
		{name: "valid", schema: trackSchema()},
		{name: "bad name", schema: Schema{Name: "Track!", Fields: []Field{{Name: "x", Type: TypeString}}}, wantErr: shared.ErrValidation},
		{name: "reserved field", schema: Schema{Name: "a", Fields: []Field{{Name: "id", Type: TypeString}}}, wantErr: shared.ErrValidation},
		{name: "duplicate field", schema: Schema{Name: "a", Fields: []Field{{Name: "x", Type: TypeString}, {Name: "x", Type: TypeInt}}}, wantErr: shared.ErrValidation},
		{name: "no fields", schema: Schema{Name: "a"}, wantErr: shared.ErrValidation},
		{name: "unknown type", schema: Schema{Name: "a", Fields: []Field{{Name: "x", Type: "decimal"}}}, wantErr: shared.ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.schema
			err := s.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if s.Table != "tracks" {
					t.Errorf("expected default table tracks, got %s", s.Table)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateTableSQL(t *testing.T) {
	s := trackSchema()
	_ = s.Validate()

	t.Run("sqlite", func(t *testing.T) {
		ddl := createTableSQL(shared.DriverSQLite, &s)
		for _, want := range []string{`CREATE TABLE IF NOT EXISTS "tracks"`, `"title" TEXT NOT NULL`, `"plays" INTEGER`, `"deleted_at" TIMESTAMP NULL`} {
			if !strings.Contains(ddl, want) {
				t.Errorf("expected DDL to contain %q:\n%s", want, ddl)
			}
		}
	})

	t.Run("postgres", func(t *testing.T) {
		ddl := createTableSQL(shared.DriverPostgres, &s)
		for _, want := range []string{`"plays" BIGINT`, `"meta" JSONB`, `"created_at" TIMESTAMPTZ NOT NULL`} {
			if !strings.Contains(ddl, want) {
				t.Errorf("expected DDL to contain %q:\n%s", want, ddl)
			}
		}
	})
}

func TestConnDefine(t *testing.T) {
	ctx := context.Background()

	t.Run("registers and records model", func(t *testing.T) {
		conn := setupTestConn(t)
		if err := conn.Define(ctx, trackSchema()); err != nil {
			t.Fatalf("Define failed: %v", err)
		}

		s, err := conn.Model("track")
		if err != nil {
			t.Fatalf("Model failed: %v", err)
		}
		if s.Table != "tracks" {
			t.Errorf("expected table tracks, got %s", s.Table)
		}

		var checksum string
		if err := conn.DB().Get(&checksum, "SELECT checksum FROM schema_models WHERE name = ?", "track"); err != nil {
			t.Fatalf("ledger row missing: %v", err)
		}
		if checksum != s.Checksum() {
			t.Errorf("expected checksum %s, got %s", s.Checksum(), checksum)
		}
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		conn := setupTestConn(t)
		if err := conn.Define(ctx, trackSchema()); err != nil {
			t.Fatalf("Define failed: %v", err)
		}
		if err := conn.Define(ctx, trackSchema()); !errors.Is(err, shared.ErrModelConflict) {
			t.Errorf("expected ErrModelConflict, got %v", err)
		}
	})

	t.Run("duplicate table conflicts", func(t *testing.T) {
		conn := setupTestConn(t)
		if err := conn.Define(ctx, Schema{Name: "song", Table: "tracks", Fields: []Field{{Name: "title", Type: TypeString}}}); err != nil {
			t.Fatalf("Define failed: %v", err)
		}
		if err := conn.Define(ctx, trackSchema()); !errors.Is(err, shared.ErrModelConflict) {
			t.Errorf("expected ErrModelConflict, got %v", err)
		}
	})

	t.Run("models keep definition order", func(t *testing.T) {
		conn := setupTestConn(t)
		for _, name := range []string{"zebra", "apple", "mango"} {
			if err := conn.Define(ctx, Schema{Name: name, Fields: []Field{{Name: "label", Type: TypeString}}}); err != nil {
				t.Fatalf("Define %s failed: %v", name, err)
			}
		}

		models := conn.Models()
		if len(models) != 3 || models[0].Name != "zebra" || models[2].Name != "mango" {
			t.Errorf("unexpected order: %+v", models)
		}
	})

	t.Run("unknown model", func(t *testing.T) {
		conn := setupTestConn(t)
		if _, err := conn.Repository("ghost"); !errors.Is(err, shared.ErrModelNotFound) {
			t.Errorf("expected ErrModelNotFound, got %v", err)
		}
	})
}

func TestRepository(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *Repository {
		t.Helper()
		conn := setupTestConn(t)
		if err := conn.Define(ctx, trackSchema()); err != nil {
			t.Fatalf("Define failed: %v", err)
		}
		repo, err := conn.Repository("track")
		if err != nil {
			t.Fatalf("Repository failed: %v", err)
		}
		return repo
	}

	t.Run("Create applies defaults", func(t *testing.T) {
		repo := setup(t)

		rec, err := repo.Create(ctx, Record{"title": "Teardrop", "explicit": true, "meta": map[string]any{"bpm": 77.0}})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if rec.ID() == "" {
			t.Error("record ID should be set after creation")
		}
		if rec["plays"] != int64(0) {
			t.Errorf("expected default plays 0, got %#v", rec["plays"])
		}
		if rec["explicit"] != true {
			t.Errorf("expected explicit true, got %#v", rec["explicit"])
		}
		meta, ok := rec["meta"].(map[string]any)
		if !ok || meta["bpm"] != 77.0 {
			t.Errorf("expected decoded meta, got %#v", rec["meta"])
		}
		if _, ok := rec[ColumnCreatedAt].(time.Time); !ok {
			t.Errorf("expected created_at time, got %#v", rec[ColumnCreatedAt])
		}
	})

	t.Run("Create rejects invalid input", func(t *testing.T) {
		repo := setup(t)

		cases := []Record{
			{"artist": "Massive Attack"},
			{"title": 42},
			{"title": "x", "bogus": 1},
			{"title": "x", "plays": 1.5},
		}
		for _, rec := range cases {
			if _, err := repo.Create(ctx, rec); !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected ErrValidation for %v, got %v", rec, err)
			}
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		repo := setup(t)
		if _, err := repo.Get(ctx, "nope"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("Update is partial", func(t *testing.T) {
		repo := setup(t)
		rec, err := repo.Create(ctx, Record{"title": "Angel", "artist": "Massive Attack"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		updated, err := repo.Update(ctx, rec.ID(), Record{"plays": "12"})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated["plays"] != int64(12) {
			t.Errorf("expected plays 12, got %#v", updated["plays"])
		}
		if updated["title"] != "Angel" {
			t.Errorf("expected title preserved, got %#v", updated["title"])
		}

		created := rec[ColumnUpdatedAt].(time.Time)
		if !updated[ColumnUpdatedAt].(time.Time).After(created) {
			t.Error("updated_at should advance")
		}
	})

	t.Run("Update missing", func(t *testing.T) {
		repo := setup(t)
		if _, err := repo.Update(ctx, "nope", Record{"plays": 1}); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("Delete is soft", func(t *testing.T) {
		repo := setup(t)
		rec, err := repo.Create(ctx, Record{"title": "Unfinished Sympathy"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if err := repo.Delete(ctx, rec.ID()); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, rec.ID()); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected deleted record hidden, got %v", err)
		}
		if err := repo.Delete(ctx, rec.ID()); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected second delete to miss, got %v", err)
		}

		var count int
		if err := repo.conn.DB().Get(&count, "SELECT COUNT(*) FROM tracks"); err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected row retained, got %d", count)
		}
	})

	t.Run("Delete is hard without soft delete", func(t *testing.T) {
		conn := setupTestConn(t)
		if err := conn.Define(ctx, Schema{Name: "tag", Fields: []Field{{Name: "label", Type: TypeString}}}); err != nil {
			t.Fatalf("Define failed: %v", err)
		}
		repo, _ := conn.Repository("tag")

		rec, err := repo.Create(ctx, Record{"label": "trip-hop"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := repo.Delete(ctx, rec.ID()); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		var count int
		if err := conn.DB().Get(&count, "SELECT COUNT(*) FROM tags"); err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected row removed, got %d", count)
		}
	})

	t.Run("List filters and orders", func(t *testing.T) {
		repo := setup(t)
		for _, rec := range []Record{
			{"title": "Teardrop", "artist": "Massive Attack"},
			{"title": "Roads", "artist": "Portishead"},
			{"title": "Angel", "artist": "Massive Attack"},
		} {
			if _, err := repo.Create(ctx, rec); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		all, err := repo.List(ctx, nil)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(all) != 3 || all[0]["title"] != "Teardrop" || all[2]["title"] != "Angel" {
			t.Errorf("unexpected list: %v", all)
		}

		filtered, err := repo.List(ctx, map[string]any{"artist": "Massive Attack"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(filtered) != 2 {
			t.Errorf("expected 2 records, got %d", len(filtered))
		}

		if _, err := repo.List(ctx, map[string]any{"bogus": "x"}); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestKeywordIdentifiers(t *testing.T) {
	ctx := context.Background()
	conn := setupTestConn(t)

	s := Schema{
		Name:  "order",
		Table: "group",
		Fields: []Field{
			{Name: "select", Type: TypeString, Required: true},
			{Name: "order", Type: TypeInt},
		},
	}
	if err := conn.Define(ctx, s); err != nil {
		t.Fatalf("Define failed: %v", err)
	}

	repo, err := conn.Repository("order")
	if err != nil {
		t.Fatalf("Repository failed: %v", err)
	}

	created, err := repo.Create(ctx, Record{"select": "a", "order": 2})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := repo.Update(ctx, created.ID(), Record{"order": 3}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	records, err := repo.List(ctx, map[string]any{"order": 3})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0]["select"] != "a" {
		t.Errorf("expected one record with select=a, got %v", records)
	}
	if err := repo.Delete(ctx, created.ID()); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}

func TestUniqueConflict(t *testing.T) {
	ctx := context.Background()
	conn := setupTestConn(t)

	s := Schema{Name: "song", Fields: []Field{{Name: "isrc", Type: TypeString, Unique: true}}}
	if err := conn.Define(ctx, s); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	repo, _ := conn.Repository("song")

	if _, err := repo.Create(ctx, Record{"isrc": "X"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("Create", func(t *testing.T) {
		if _, err := repo.Create(ctx, Record{"isrc": "X"}); !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		other, err := repo.Create(ctx, Record{"isrc": "Y"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, err := repo.Update(ctx, other.ID(), Record{"isrc": "X"}); !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})
}

func TestSchemaChanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "makin.db")

	// open returns a fresh connection to the same file, as a restart would.
	open := func(t *testing.T) *Conn {
		t.Helper()
		db, err := shared.NewDatabase(shared.DriverSQLite, path)
		if err != nil {
			t.Fatalf("NewDatabase failed: %v", err)
		}
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations failed: %v", err)
		}
		conn := New(db)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	v1 := Schema{Name: "track", Fields: []Field{{Name: "title", Type: TypeString, Required: true}}}
	if err := open(t).Define(ctx, v1); err != nil {
		t.Fatalf("Define v1 failed: %v", err)
	}

	t.Run("added fields become columns", func(t *testing.T) {
		v2 := Schema{Name: "track", Fields: []Field{
			{Name: "title", Type: TypeString, Required: true},
			{Name: "artist", Type: TypeString},
			{Name: "isrc", Type: TypeString, Unique: true},
		}}

		conn := open(t)
		if err := conn.Define(ctx, v2); err != nil {
			t.Fatalf("Define v2 failed: %v", err)
		}

		repo, _ := conn.Repository("track")
		rec, err := repo.Create(ctx, Record{"title": "Xtal", "artist": "Aphex Twin", "isrc": "GB1"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if rec["artist"] != "Aphex Twin" {
			t.Errorf("expected artist to persist, got %v", rec["artist"])
		}
		if _, err := repo.Create(ctx, Record{"title": "Xtal", "isrc": "GB1"}); !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected unique index on added column, got %v", err)
		}
	})

	t.Run("removed fields are refused", func(t *testing.T) {
		if err := open(t).Define(ctx, v1); !errors.Is(err, shared.ErrSchemaDrift) {
			t.Errorf("expected ErrSchemaDrift, got %v", err)
		}
	})
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		in    any
		want  any
		err   bool
	}{
		{name: "int from float", field: Field{Name: "n", Type: TypeInt}, in: 3.0, want: int64(3)},
		{name: "int from string", field: Field{Name: "n", Type: TypeInt}, in: "7", want: int64(7)},
		{name: "int from fraction", field: Field{Name: "n", Type: TypeInt}, in: 3.5, err: true},
		{name: "float from string", field: Field{Name: "f", Type: TypeFloat}, in: "1.25", want: 1.25},
		{name: "bool from string", field: Field{Name: "b", Type: TypeBool}, in: "true", want: true},
		{name: "bool from int", field: Field{Name: "b", Type: TypeBool}, in: 1, err: true},
		{name: "time from string", field: Field{Name: "t", Type: TypeTime}, in: "2025-01-02T03:04:05Z", want: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{name: "json encodes", field: Field{Name: "j", Type: TypeJSON}, in: []any{"a"}, want: `["a"]`},
		{name: "nil passes", field: Field{Name: "s", Type: TypeString}, in: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(tt.field, tt.in)
			if tt.err {
				if !errors.Is(err, shared.ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}
