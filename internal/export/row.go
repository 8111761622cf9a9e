package export

import "github.com/omnifeed/feed-export-service/internal/model"

// BuildRow produces one cell per schema column, in schema order. The row is
// always exactly as wide as the schema: an unrecognized column id or an
// extractor fault degrades that cell to the empty string instead of
// shortening or aborting the row.
func BuildRow(site Site, p *model.Product, schema []Column) []string {
	row := make([]string, len(schema))
	for i, col := range schema {
		row[i] = extractCell(site, p, col)
	}
	return row
}

// extractCell is the per-field fault isolation boundary. A panicking
// extractor (broken relation, inconsistent sub-data) costs one cell, never
// the row or the run.
func extractCell(site Site, p *model.Product, col Column) (cell string) {
	fn, ok := extractors[col]
	if !ok {
		return ""
	}
	defer func() {
		if recover() != nil {
			cell = ""
		}
	}()
	return fn(site, p)
}
