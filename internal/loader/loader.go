package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// Descriptor identifies a module file.
type Descriptor struct {
	Filename string
	Slug     string
}

// NewDescriptor builds a [Descriptor] for filename.
func NewDescriptor(filename string) Descriptor {
	return Descriptor{Filename: filename, Slug: Slug(filename)}
}

// Slug returns filename up to its first "." ("tracks.toml" -> "tracks", "me.v2.yaml" -> "me").
func Slug(filename string) string {
	base := path.Base(filename)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// DecodeFunc turns the raw bytes of a module file into a module value.
type DecodeFunc[T any] func(d Descriptor, data []byte) (T, error)

// ApplyFunc registers a decoded module with whatever shared context the caller closes over.
type ApplyFunc[T any] func(ctx context.Context, module T, d Descriptor) error

// LoadError records the failure of one module file.
type LoadError struct {
	Descriptor Descriptor
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Descriptor.Filename, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Report summarises one loader run.
type Report struct {
	Dir     string
	Loaded  []Descriptor
	Failed  []*LoadError
	Skipped []Descriptor // files never reached because of [FailFast]
}

// OK reports whether every module loaded.
func (r *Report) OK() bool {
	return len(r.Failed) == 0 && len(r.Skipped) == 0
}

// Err joins every failure into one error, or returns nil.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

type options struct {
	failFast bool
}

// Option configures [LoadAndApply].
type Option func(*options)

// FailFast stops the scan at the first failing module.
func FailFast() Option {
	return func(o *options) { o.failFast = true }
}

// List returns the module files in dir sorted by name. Directories and dotfiles are skipped.
func List(fsys fs.FS, dir string) ([]Descriptor, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read module directory %s: %w", dir, err)
	}

	descriptors := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		descriptors = append(descriptors, NewDescriptor(name))
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Filename < descriptors[j].Filename
	})

	return descriptors, nil
}

// LoadAndApply decodes every module file in dir and passes it to apply, sequentially and in
// filename order.
//
// A directory listing failure is returned immediately with a nil report. Per-file failures
// are collected in the report and returned joined through [Report.Err].
func LoadAndApply[T any](ctx context.Context, fsys fs.FS, dir string, decode DecodeFunc[T], apply ApplyFunc[T], opts ...Option) (*Report, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	descriptors, err := List(fsys, dir)
	if err != nil {
		return nil, err
	}

	report := &Report{Dir: dir}
	for i, d := range descriptors {
		if err := ctx.Err(); err != nil {
			report.Skipped = append(report.Skipped, descriptors[i:]...)
			return report, err
		}

		if err := load(ctx, fsys, dir, d, decode, apply); err != nil {
			report.Failed = append(report.Failed, &LoadError{Descriptor: d, Err: err})
			if o.failFast {
				report.Skipped = append(report.Skipped, descriptors[i+1:]...)
				break
			}
			continue
		}
		report.Loaded = append(report.Loaded, d)
	}

	return report, report.Err()
}

func load[T any](ctx context.Context, fsys fs.FS, dir string, d Descriptor, decode DecodeFunc[T], apply ApplyFunc[T]) error {
	data, err := fs.ReadFile(fsys, path.Join(dir, d.Filename))
	if err != nil {
		return fmt.Errorf("failed to read module: %w", err)
	}

	module, err := decode(d, data)
	if err != nil {
		return err
	}

	return apply(ctx, module, d)
}
