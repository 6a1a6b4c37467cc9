package routes

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"regexp"
	"strings"

	"github.com/desertthunder/makin/internal/loader"
	"github.com/desertthunder/makin/internal/orm"
	"github.com/desertthunder/makin/internal/shared"
)

// IndexSlug is the slug mounted at the prefix itself.
const IndexSlug = "index"

// slugPattern keeps chi pattern syntax ("*", "{", "}") out of mount paths.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CheckSlug rejects slugs that cannot be used as a single literal path segment.
func CheckSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug %q may only contain letters, digits, '-' and '_'", shared.ErrInvalidModule, slug)
	}
	return nil
}

// Mounter is the part of the host router route modules need.
type Mounter interface {
	Mount(path string, handler http.Handler)
}

// MountedRoute describes where one module file is (or would be) mounted.
type MountedRoute struct {
	Descriptor  loader.Descriptor
	Path        string
	Description string
	Endpoints   []Endpoint
}

// MountPath returns prefix + "/" + slug, or prefix alone for the index module.
// An empty prefix with the index module mounts at "/".
func MountPath(prefix, slug string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if slug == IndexSlug {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	return prefix + "/" + slug
}

// Mount builds every route module in dir and mounts it on router under prefix.
//
// Modules load in filename order. A module that fails to decode or build is recorded in the
// report and skipped; the rest still mount.
func Mount(ctx context.Context, router Mounter, fsys fs.FS, dir, prefix string, actions *Actions, conn *orm.Conn, opts ...loader.Option) (*loader.Report, error) {
	if actions == nil {
		actions = NewActions()
	}

	apply := func(_ context.Context, m Module, d loader.Descriptor) (err error) {
		if err := CheckSlug(d.Slug); err != nil {
			return err
		}
		h, err := m.Build(actions, conn)
		if err != nil {
			return err
		}

		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: mounting %s: %v", shared.ErrInvalidModule, d.Filename, p)
			}
		}()
		router.Mount(MountPath(prefix, d.Slug), h)
		return nil
	}
	return loader.LoadAndApply(ctx, fsys, dir, Decode, apply, opts...)
}

// Table decodes the route modules in dir without building them and reports where each would
// mount.
func Table(ctx context.Context, fsys fs.FS, dir, prefix string) ([]MountedRoute, *loader.Report, error) {
	var table []MountedRoute
	collect := func(_ context.Context, m Module, d loader.Descriptor) error {
		if err := CheckSlug(d.Slug); err != nil {
			return err
		}
		table = append(table, MountedRoute{
			Descriptor:  d,
			Path:        MountPath(prefix, d.Slug),
			Description: m.Description,
			Endpoints:   m.Resolved(),
		})
		return nil
	}

	report, err := loader.LoadAndApply(ctx, fsys, dir, Decode, collect)
	return table, report, err
}
