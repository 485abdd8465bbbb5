package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

var schemaHeaders = [3]string{"Name", "Type", "Description"}

// HeadRows is the number of rows shown by HeadTable.
const HeadRows = 5

// SchemaTable renders the dataset's columns as a fixed-width table.
// When the item carries no table:columns, the parquet file at href (the
// location queries will read) is introspected through engine. Failing that, the schema is unavailable and an error is
// returned.
func SchemaTable(ctx context.Context, ds *models.Dataset, href string, engine contracts.QueryEngine) (string, error) {
	columns := ds.Item.Properties.TableColumns
	if len(columns) == 0 {
		if href == "" {
			return "", fmt.Errorf("dataset %s has no asset location", ds.ID())
		}
		if engine == nil {
			return "", fmt.Errorf("dataset %s has no schema and no engine to introspect it", ds.ID())
		}
		var err error
		columns, err = engine.Columns(ctx, href)
		if err != nil {
			return "", fmt.Errorf("introspect %s: %w", href, err)
		}
		if len(columns) == 0 {
			return "", fmt.Errorf("dataset %s has no columns", ds.ID())
		}
	}
	return RenderSchema(columns), nil
}

// HeadTable returns the first rows of the parquet file at href as markdown.
func HeadTable(ctx context.Context, href string, engine contracts.QueryEngine) (string, error) {
	table, err := engine.Query(ctx, fmt.Sprintf("SELECT * FROM '%s' LIMIT %d", href, HeadRows))
	if err != nil {
		return "", fmt.Errorf("head of %s: %w", href, err)
	}
	return table.Markdown(), nil
}

// RenderSchema lays out Name, Type and Description columns separated by two
// spaces with a dashed rule under the header. A column is as wide as its
// widest cell, and at least two wider than its header.
func RenderSchema(columns []models.TableColumn) string {
	rows := make([][3]string, len(columns))
	for i, c := range columns {
		rows[i] = [3]string{c.Name, c.Type, c.Description}
	}

	var widths [3]int
	for i, h := range schemaHeaders {
		widths[i] = len(h) + 2
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, formatRow(schemaHeaders, widths))
	var rule [3]string
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	lines = append(lines, formatRow(rule, widths))
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths))
	}
	return strings.Join(lines, "\n")
}

func formatRow(cells [3]string, widths [3]int) string {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
	}
	return strings.TrimRight(b.String(), " ")
}
