//go:build ignore

// This program generates the sample workbook used by manual runs and demos:
//
//	go run testdata/generate_fixtures.go
//	sheetsense run "make the header row bold" -w testdata/sample.xlsx
package main

import (
	"fmt"
	"os"

	"github.com/klytics/sheetsense/internal/sheet"
)

func main() {
	if err := generateXlsx("testdata/sample.xlsx"); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating sample.xlsx: %v\n", err)
		os.Exit(1)
	}
	if err := generateCommands("testdata/commands.txt"); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating commands.txt: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Test fixtures generated successfully.")
}

func generateXlsx(path string) error {
	wb := sheet.Create(path)
	defer wb.Close()

	sales := [][]interface{}{
		{"Region", "Rep", "Product", "Units", "Amount", "Date"},
		{"North", "  Alice ", "Widget", 12, 1440.0, "2026-01-04"},
		{"South", "Bob", "Gadget", 7, 1050.5, "2026-01-05"},
		{"East", "Carol", "Widget", 3, 360.0, "2026-01-09"},
		{"West", "Dan", "Gizmo", 21, 4200.0, "2026-01-12"},
		{"North", "  Alice ", "Widget", 12, 1440.0, "2026-01-04"},
		{"South", "Erin", "", 0, nil, "2026-01-15"},
		{"East", "Frank", "Gadget", 9, 1350.0, "2026-01-18"},
	}
	if err := write(wb, "Sheet1", sales); err != nil {
		return err
	}
	if err := wb.File().SetSheetName("Sheet1", "Sales"); err != nil {
		return err
	}

	if _, err := wb.File().NewSheet("Budget"); err != nil {
		return err
	}
	budget := [][]interface{}{
		{"Category", "Planned", "Actual"},
		{"Rent", 2000, 2000},
		{"Payroll", 15000, 15350},
		{"Marketing", 3000, 2275},
		{"Travel", 1200, 1890},
	}
	if err := write(wb, "Budget", budget); err != nil {
		return err
	}
	return wb.Sync()
}

func write(wb *sheet.Workbook, sheetName string, rows [][]interface{}) error {
	r, err := sheet.ParseAddress(fmt.Sprintf("A1:%s", corner(rows)), sheetName)
	if err != nil {
		return err
	}
	return wb.SetValues(r, rows)
}

func corner(rows [][]interface{}) string {
	return fmt.Sprintf("%c%d", 'A'+len(rows[0])-1, len(rows))
}

func generateCommands(path string) error {
	lines := "# One command per line; run with: sheetsense run -f testdata/commands.txt -w testdata/sample.xlsx\n" +
		"trim whitespace in the sales table\n" +
		"remove duplicate rows\n" +
		"make the header row bold with a light blue fill\n" +
		"freeze the top row\n"
	return os.WriteFile(path, []byte(lines), 0o644)
}
