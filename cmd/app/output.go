package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prathameshpawar06/stockbridge/internal/domain"
)

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func uintToString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func formatMaybeUint(v *uint) string {
	if v == nil {
		return "-"
	}
	return uintToString(*v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func printSchemaPage(page domain.SchemaPage) {
	rows := make([][]string, 0, len(page.Items))
	for _, item := range page.Items {
		rows = append(rows, []string{
			uintToString(item.ID),
			item.Name,
			strconv.Itoa(item.SectionCount),
			formatTime(item.UpdatedAt),
		})
	}
	printTable([]string{"ID", "NAME", "SECTIONS", "UPDATED_AT"}, rows)
	fmt.Printf("page %d/%d, %d total\n", page.Page, page.TotalPages, page.Total)
}

// printTree lists every section and column of a schema or instance tree,
// one line per column.
func printTree(sections []domain.Section) {
	rows := make([][]string, 0)
	for _, section := range sections {
		if len(section.Columns) == 0 {
			rows = append(rows, []string{uintToString(section.ID), section.Name, strconv.Itoa(section.Sequence), "-", "-", "-", "-"})
			continue
		}
		for _, column := range section.Columns {
			rows = append(rows, []string{
				uintToString(section.ID),
				section.Name,
				strconv.Itoa(section.Sequence),
				uintToString(column.ID),
				column.Name,
				column.DataType,
				strconv.Itoa(len(column.Cells)),
			})
		}
	}
	printTable([]string{"SECTION_ID", "SECTION", "SEQ", "COLUMN_ID", "COLUMN", "TYPE", "CELLS"}, rows)
}

func printSchema(schema domain.SchemaDefinition) {
	printKV([][2]string{
		{"id", uintToString(schema.ID)},
		{"name", schema.Name},
		{"description", schema.Description},
		{"version", uintToString(schema.Version)},
		{"updated_at", formatTime(schema.UpdatedAt)},
	})
	fmt.Println()
	printTree(schema.Sections)
}

func printInstance(inst domain.Instance) {
	owner := inst.OwnerRef
	if owner == "" {
		owner = "-"
	}
	printKV([][2]string{
		{"id", uintToString(inst.ID)},
		{"schema_id", uintToString(inst.SchemaID)},
		{"owner_ref", owner},
		{"updated_at", formatTime(inst.UpdatedAt)},
	})
	fmt.Println()
	printTree(inst.Sections)
}

func printTables(tables []domain.Table) {
	for i, table := range tables {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("## %s (section %d)\n", table.Name, table.SectionID)
		headers := make([]string, 0, len(table.Headers)+1)
		headers = append(headers, "ROW")
		for _, h := range table.Headers {
			headers = append(headers, strings.ToUpper(h.Name))
		}
		rows := make([][]string, 0, len(table.Rows))
		for _, row := range table.Rows {
			rows = append(rows, append([]string{strconv.Itoa(row.RowIndex)}, row.Cells...))
		}
		printTable(headers, rows)
	}
}

func printAuditLogs(items []domain.AuditLog) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		actor := item.Actor
		if actor == "" {
			actor = "-"
		}
		rows = append(rows, []string{
			uintToString(item.ID),
			item.Action,
			item.TargetType,
			formatMaybeUint(item.TargetID),
			actor,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "ACTION", "TARGET_TYPE", "TARGET_ID", "ACTOR", "AT"}, rows)
}
