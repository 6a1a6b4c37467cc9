// package formatter renders the mount table and model registry for the CLI (text, Markdown, CSV)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/makin/internal/orm"
	"github.com/desertthunder/makin/internal/routes"
)

// Formats accepted by [Routes] and [Models].
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

// Routes renders the mount table in format.
func Routes(table []routes.MountedRoute, format string) ([]byte, error) {
	switch format {
	case FormatText, "":
		return RoutesToText(table)
	case FormatMarkdown:
		return RoutesToMarkdown(table)
	case FormatCSV:
		return RoutesToCSV(table)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// Models renders model schemas in format.
func Models(schemas []orm.Schema, format string) ([]byte, error) {
	switch format {
	case FormatText, "":
		return ModelsToText(schemas)
	case FormatMarkdown:
		return ModelsToMarkdown(schemas)
	case FormatCSV:
		return ModelsToCSV(schemas)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// RoutesToCSV writes one row per endpoint with columns: Mount, Method, Path, Action, Model, File
func RoutesToCSV(table []routes.MountedRoute) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Mount", "Method", "Path", "Action", "Model", "File"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, route := range table {
		for _, e := range route.Endpoints {
			record := []string{route.Path, e.Method, fullPath(route.Path, e.Path), e.Action, e.Model, route.Descriptor.Filename}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// RoutesToMarkdown renders one section per mounted module with an endpoint table.
func RoutesToMarkdown(table []routes.MountedRoute) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Routes\n\n")
	for _, route := range table {
		fmt.Fprintf(&buf, "## `%s`\n\n", route.Path)
		fmt.Fprintf(&buf, "**File**: %s\n\n", route.Descriptor.Filename)
		if route.Description != "" {
			fmt.Fprintf(&buf, "%s\n\n", route.Description)
		}

		buf.WriteString("| Method | Path | Action | Model |\n")
		buf.WriteString("|---|---|---|---|\n")
		for _, e := range route.Endpoints {
			fmt.Fprintf(&buf, "| %s | `%s` | %s | %s |\n", e.Method, fullPath(route.Path, e.Path), e.Action, e.Model)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// RoutesToText renders the mount table for a terminal.
func RoutesToText(table []routes.MountedRoute) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(styles.Title(fmt.Sprintf("Routes: %d modules", len(table))) + "\n")
	for _, route := range table {
		fmt.Fprintf(&buf, "%s  %s\n", styles.OK(route.Path), styles.Help(route.Descriptor.Filename))
		for _, e := range route.Endpoints {
			line := fmt.Sprintf("  %-7s %-32s %s", e.Method, fullPath(route.Path, e.Path), e.Action)
			if e.Model != "" {
				line += " (" + e.Model + ")"
			}
			buf.WriteString(line + "\n")
		}
	}

	return buf.Bytes(), nil
}

// ModelsToCSV writes one row per field with columns: Model, Table, Field, Type, Required, Unique
func ModelsToCSV(schemas []orm.Schema) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Model", "Table", "Field", "Type", "Required", "Unique"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range schemas {
		for _, f := range s.Fields {
			record := []string{s.Name, s.Table, f.Name, string(f.Type), yesNo(f.Required), yesNo(f.Unique)}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ModelsToMarkdown renders one section per model with a field table.
func ModelsToMarkdown(schemas []orm.Schema) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Models\n\n")
	for _, s := range schemas {
		fmt.Fprintf(&buf, "## %s\n\n", s.Name)
		fmt.Fprintf(&buf, "**Table**: `%s`\n", s.Table)
		fmt.Fprintf(&buf, "**Soft delete**: %s\n\n", yesNo(s.SoftDelete))

		buf.WriteString("| Field | Type | Required | Unique |\n")
		buf.WriteString("|---|---|---|---|\n")
		for _, f := range s.Fields {
			fmt.Fprintf(&buf, "| %s | %s | %s | %s |\n", f.Name, f.Type, yesNo(f.Required), yesNo(f.Unique))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ModelsToText renders model schemas for a terminal.
func ModelsToText(schemas []orm.Schema) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(styles.Title(fmt.Sprintf("Models: %d", len(schemas))) + "\n")
	for _, s := range schemas {
		fmt.Fprintf(&buf, "%s  %s\n", styles.OK(s.Name), styles.Help("table "+s.Table))
		for _, f := range s.Fields {
			var flags []string
			if f.Required {
				flags = append(flags, "required")
			}
			if f.Unique {
				flags = append(flags, "unique")
			}
			fmt.Fprintf(&buf, "  %-20s %-7s %s\n", f.Name, f.Type, strings.Join(flags, ","))
		}
	}

	return buf.Bytes(), nil
}

// WriteExport writes data to path, refusing to overwrite an existing file unless force is set.
func WriteExport(path string, data []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists at %s", path)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func fullPath(mount, path string) string {
	if path == "/" {
		return mount
	}
	return strings.TrimSuffix(mount, "/") + path
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
