// Package prompt builds the planning instructions sent to the model.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/klytics/sheetsense/internal/tasklib"
)

// NoSelection is the context line used when the workbook cannot be queried.
const NoSelection = "No selection info."

// Schema is the fixed action schema and ground rules.
const Schema = `You are an AI assistant for spreadsheets. Your job is to translate user requests into JSON actions that are executed against the open workbook.

CRITICAL INSTRUCTION:
- Prioritize DOING over EXPLAINING.
- If the request is vague (e.g. "format this table", "make it look good"), INFER REASONABLE DEFAULTS (e.g. a professional blue header style) and emit the actions immediately.
- Do NOT simply describe what you can do. Do it.
- Only ask for clarification when the request is impossible to infer (e.g. "put the value here" with no value given).
- NEVER guess cell addresses that depend on the data (e.g. "the cells above 100"). Use conditionalFormatting or highlightCells on the whole range instead.
- When no address is given, omit "address"; the current selection is used.

Return a JSON OBJECT with two keys:
1. "actions": an ARRAY of action objects. Each object MUST have a "kind" field naming one of the Supported Actions.
2. "message": a short, friendly sentence telling the user what you did.

Do NOT return markdown. Return ONLY raw JSON.

Supported Actions:
1. editCell (address, values, isFormula) - values is a scalar or a 2D array; strings starting with "=" are formulas.
2. formatRange (address, format: {fill, fontColor, bold, italic, fontSize, numberFormat, horizontalAlignment, columnWidth, wrapText, borders})
   - columnWidth is a number or "AutoFit". Header defaults: fill "#4F81BD", fontColor "white", bold true.
3. createTable (address, hasHeaders, name)
4. createChart (dataRange, chartType: ColumnClustered|Line|Pie|BarClustered, title, seriesBy: rows|columns)
5. addWorksheet (name)
6. freezePanes (orientation: Row|Column, count)
7. createPivotTable (address, destination, name, rows, columns, values, summary: Sum|Count|Average|Max|Min)
8. sortRange (address, column, ascending, hasHeaders) - column is a zero-based offset.
9. removeDuplicates (address, columns, includesHeader) - columns are zero-based offsets or header names.
10. trimWhitespace (address)
11. highlightCells (address, condition: empty|errors, color)
12. conditionalFormatting (address, rule: colorScale|lessThan|greaterThan|textEquals, points, value, color)
13. generateReport (address, title, fields, months, items, payments)
14. clearRange (address)
15. mergeCells (address, across)`

const genericHint = `Task library: common tasks such as reports, data cleanup, table formatting, budgets and pivots have standard procedures. Follow the usual spreadsheet conventions for them.`

// ContextSource reports the live workbook context.
type ContextSource interface {
	ActiveSheet() (string, error)
	SelectionAddress() (string, error)
}

// Prompt is a composed system and user message pair.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Composer builds prompts. The zero value is usable.
type Composer struct {
	Logger *zap.Logger
}

// NewComposer returns a composer that logs through logger.
func NewComposer(logger *zap.Logger) *Composer {
	return &Composer{Logger: logger}
}

func (c *Composer) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Compose builds the prompt for command. A matched procedure is offered as a
// recommendation; without one the generic task-library hint is used. Context
// failures never block composition.
func (c *Composer) Compose(ctx context.Context, src ContextSource, command string, proc *tasklib.Procedure) Prompt {
	var sys strings.Builder
	sys.WriteString(Schema)
	sys.WriteString("\n\n")
	if proc != nil {
		block, err := procedureBlock(proc)
		if err != nil {
			c.logger().Warn("could not render procedure, using generic hint",
				zap.String("procedure", proc.Name), zap.Error(err))
			sys.WriteString(genericHint)
		} else {
			sys.WriteString(block)
		}
	} else {
		sys.WriteString(genericHint)
	}

	return Prompt{
		System: sys.String(),
		User:   fmt.Sprintf("Context: %s\nUser Request: %s", c.contextInfo(ctx, src), strings.TrimSpace(command)),
	}
}

func procedureBlock(p *tasklib.Procedure) (string, error) {
	tmpl, err := p.TemplateJSON()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "RECOMMENDED PROCEDURE: %q", p.Name)
	if p.Category != "" {
		fmt.Fprintf(&b, " (%s)", p.Category)
	}
	b.WriteString("\nThis is a recommended, not mandatory, way to do this task. Adapt addresses, names and values to the user's data and request.\n")
	b.WriteString("Template actions:\n")
	b.WriteString(tmpl)
	return b.String(), nil
}

func (c *Composer) contextInfo(ctx context.Context, src ContextSource) string {
	if src == nil || ctx.Err() != nil {
		return NoSelection
	}
	sheetName, err := src.ActiveSheet()
	if err != nil {
		c.logger().Warn("could not read active sheet", zap.Error(err))
		return NoSelection
	}
	addr, err := src.SelectionAddress()
	if err != nil {
		c.logger().Debug("could not read selection", zap.Error(err))
		return NoSelection
	}
	return fmt.Sprintf("Current Sheet: %q. Selected Range: %q", sheetName, addr)
}
