// Package ledger appends records to the external spreadsheet the operator
// keeps open in a pinned browser tab. There is no API client: rows are
// delivered the same way everything else is, by simulated input, and reads
// come back through the clipboard.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sellflow/internal/input"
)

// Row is one spreadsheet row, cell per element.
type Row []string

// Ledger is the external spreadsheet collaborator surface.
type Ledger interface {
	AppendRow(ctx context.Context, row Row) error
	ReadRange(ctx context.Context, query string) ([]Row, error)
}

// ExternalServiceError reports that a collaborator interaction failed or
// returned data we could not interpret.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Performer is the slice of the input executor the ledger needs.
type Performer interface {
	PerformAll(ctx context.Context, actions []input.Action) error
	ReadClipboard(ctx context.Context) (string, error)
}

// SheetLedger drives the spreadsheet tab through coordinate elements:
// ledger_tab focuses the tab, ledger_name_box addresses a cell or range.
type SheetLedger struct {
	performer Performer
	logger    *zap.Logger
}

// NewSheetLedger builds the UI-driven implementation.
func NewSheetLedger(performer Performer, logger *zap.Logger) *SheetLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetLedger{performer: performer, logger: logger}
}

// ElementNames lists the coordinate elements the ledger touches, for eager
// validation alongside the pipeline's own steps.
func ElementNames() []string {
	return []string{"ledger_tab", "ledger_name_box"}
}

// AppendRow jumps to column A of the first empty row and types the record
// as a tab-separated line. Ctrl+End lands on the last used cell in whatever
// column it occupies, so Home pulls the cursor back to column A before
// stepping down. Tabs inside cells would shift columns, so they are
// flattened to spaces first.
func (l *SheetLedger) AppendRow(ctx context.Context, row Row) error {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = strings.ReplaceAll(strings.ReplaceAll(c, "\t", " "), "\n", " ")
	}

	actions := []input.Action{
		input.Click{Element: "ledger_tab"},
		input.KeyCombo{Keys: []string{input.PrimaryModifier, "end"}},
		input.KeyCombo{Keys: []string{"home"}},
		input.KeyCombo{Keys: []string{"down"}},
		input.TypeText{Text: strings.Join(cells, "\t")},
		input.KeyCombo{Keys: []string{"enter"}},
	}
	if err := l.performer.PerformAll(ctx, actions); err != nil {
		return &ExternalServiceError{Service: "spreadsheet", Op: "append_row", Err: err}
	}
	l.logger.Info("ledger row appended", zap.Int("cells", len(cells)))
	return nil
}

// ReadRange selects the addressed range through the name box, copies it, and
// parses the clipboard as tab-separated rows. query uses the sheet's own
// range syntax, e.g. "A2:F50".
func (l *SheetLedger) ReadRange(ctx context.Context, query string) ([]Row, error) {
	actions := []input.Action{
		input.Click{Element: "ledger_tab"},
		input.Click{Element: "ledger_name_box"},
		input.TypeText{Text: query},
		input.KeyCombo{Keys: []string{"enter"}},
		input.KeyCombo{Keys: []string{input.PrimaryModifier, "c"}},
	}
	if err := l.performer.PerformAll(ctx, actions); err != nil {
		return nil, &ExternalServiceError{Service: "spreadsheet", Op: "read_range", Err: err}
	}

	text, err := l.performer.ReadClipboard(ctx)
	if err != nil {
		return nil, &ExternalServiceError{Service: "spreadsheet", Op: "read_range", Err: err}
	}
	return ParseRows(text), nil
}

// ParseRows splits clipboard text into rows of cells. Trailing empty lines
// from the copy are dropped; interior blank rows are preserved.
func ParseRows(text string) []Row {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	rows := make([]Row, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		rows = append(rows, Row(strings.Split(line, "\t")))
	}
	return rows
}
