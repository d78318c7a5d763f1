package application

import (
	"cmp"
	"slices"

	"github.com/prathameshpawar06/stockbridge/internal/domain"
)

// BuildTables pivots an instance tree into one row-major table per section,
// in section sequence order.
func BuildTables(sections []domain.Section) []domain.Table {
	ordered := slices.Clone(sections)
	slices.SortStableFunc(ordered, func(a, b domain.Section) int { return cmp.Compare(a.Sequence, b.Sequence) })

	tables := make([]domain.Table, 0, len(ordered))
	for _, section := range ordered {
		tables = append(tables, BuildTable(section))
	}
	return tables
}

// BuildTable pivots one section. The first column by sequence is the key
// column: only row indexes where it holds a non-empty value become rows.
// Positions without a cell render as "".
func BuildTable(section domain.Section) domain.Table {
	columns := slices.Clone(section.Columns)
	slices.SortStableFunc(columns, func(a, b domain.Column) int { return cmp.Compare(a.Sequence, b.Sequence) })

	table := domain.Table{
		SectionID: section.ID,
		Name:      section.Name,
		Comments:  section.Comments,
		Headers:   make([]domain.TableHeader, 0, len(columns)),
		Rows:      make([]domain.TableRow, 0),
	}
	for _, c := range columns {
		table.Headers = append(table.Headers, domain.TableHeader{ColumnID: c.ID, Name: c.Name, DataType: c.DataType})
	}
	if len(columns) == 0 {
		return table
	}

	values := make([]map[int]string, len(columns))
	for i, c := range columns {
		cells := slices.Clone(c.Cells)
		slices.SortStableFunc(cells, func(a, b domain.Cell) int { return cmp.Compare(a.RowIndex, b.RowIndex) })
		byRow := make(map[int]string, len(cells))
		for _, cell := range cells {
			if _, ok := byRow[cell.RowIndex]; !ok {
				byRow[cell.RowIndex] = cell.Value
			}
		}
		values[i] = byRow
	}

	for _, row := range ValidRows(columns[0]) {
		cells := make([]string, len(columns))
		for i := range columns {
			cells[i] = DisplayValue(values[i][row])
		}
		table.Rows = append(table.Rows, domain.TableRow{RowIndex: row, Cells: cells})
	}
	return table
}

// ValidRows returns, ascending, the row indexes where the key column holds a
// non-empty value. When a row index repeats, the first cell decides.
func ValidRows(key domain.Column) []int {
	cells := slices.Clone(key.Cells)
	slices.SortStableFunc(cells, func(a, b domain.Cell) int { return cmp.Compare(a.RowIndex, b.RowIndex) })

	rows := make([]int, 0, len(cells))
	seen := make(map[int]struct{}, len(cells))
	for _, cell := range cells {
		if _, ok := seen[cell.RowIndex]; ok {
			continue
		}
		seen[cell.RowIndex] = struct{}{}
		if cell.Value != "" {
			rows = append(rows, cell.RowIndex)
		}
	}
	return rows
}

func DisplayValue(value string) string {
	switch value {
	case domain.CellTrue:
		return "Yes"
	case domain.CellFalse:
		return "No"
	default:
		return value
	}
}
