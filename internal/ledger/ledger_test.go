package ledger

import (
	"context"
	"errors"
	"testing"

	"sellflow/internal/input"
)

type fakePerformer struct {
	actions   []input.Action
	clipboard string
	err       error
}

func (f *fakePerformer) PerformAll(ctx context.Context, actions []input.Action) error {
	f.actions = append(f.actions, actions...)
	return f.err
}

func (f *fakePerformer) ReadClipboard(ctx context.Context) (string, error) {
	return f.clipboard, nil
}

func TestAppendRow(t *testing.T) {
	p := &fakePerformer{}
	l := NewSheetLedger(p, nil)

	err := l.AppendRow(context.Background(), Row{"vintage camera", "3000", "https://example.com/item\twith\ttabs"})
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	var typed string
	for _, a := range p.actions {
		if tt, ok := a.(input.TypeText); ok {
			typed = tt.Text
		}
	}
	want := "vintage camera\t3000\thttps://example.com/item with tabs"
	if typed != want {
		t.Errorf("typed = %q, want %q", typed, want)
	}
}

func TestAppendRow_StartsRowAtFirstColumn(t *testing.T) {
	p := &fakePerformer{}
	l := NewSheetLedger(p, nil)

	if err := l.AppendRow(context.Background(), Row{"m1", "2900"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	// Ctrl+End parks on the last used column; Home must precede Down so
	// typing starts in column A of the empty row.
	var combos [][]string
	for _, a := range p.actions {
		if kc, ok := a.(input.KeyCombo); ok {
			combos = append(combos, kc.Keys)
		}
	}
	if len(combos) < 3 {
		t.Fatalf("key combos = %v, want end/home/down before typing", combos)
	}
	if combos[0][len(combos[0])-1] != "end" || combos[1][0] != "home" || combos[2][0] != "down" {
		t.Errorf("key combo order = %v, want end then home then down", combos)
	}
}

func TestAppendRow_ActionFailureWrapsExternalServiceError(t *testing.T) {
	p := &fakePerformer{err: &input.ActionError{Action: "click", Err: errors.New("no response")}}
	l := NewSheetLedger(p, nil)

	err := l.AppendRow(context.Background(), Row{"x"})
	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("error = %v, want ExternalServiceError", err)
	}
	if extErr.Service != "spreadsheet" || extErr.Op != "append_row" {
		t.Errorf("error identity = %s/%s", extErr.Service, extErr.Op)
	}
	var actErr *input.ActionError
	if !errors.As(err, &actErr) {
		t.Error("underlying action error not preserved")
	}
}

func TestReadRange(t *testing.T) {
	p := &fakePerformer{clipboard: "m123\t3000\t5\r\nm456\t5200\t0\r\n"}
	l := NewSheetLedger(p, nil)

	rows, err := l.ReadRange(context.Background(), "A2:C3")
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0][0] != "m123" || rows[1][2] != "0" {
		t.Errorf("rows = %v", rows)
	}

	var typedQuery bool
	for _, a := range p.actions {
		if tt, ok := a.(input.TypeText); ok && tt.Text == "A2:C3" {
			typedQuery = true
		}
	}
	if !typedQuery {
		t.Error("range query never typed into the name box")
	}
}

func TestParseRows(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"single", "a\tb", 1},
		{"trailing newlines dropped", "a\tb\n\n\n", 1},
		{"interior blank kept", "a\n\nb", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(ParseRows(tc.in)); got != tc.want {
				t.Errorf("rows = %d, want %d", got, tc.want)
			}
		})
	}
}
