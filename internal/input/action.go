// Package input performs primitive UI actions at screen coordinates.
// Actions are issued through a Driver (the CDP-backed implementation in
// rod.go in production, fakes in tests) and failures always surface as
// ActionError, never silently.
package input

import (
	"fmt"

	"sellflow/internal/coords"
)

// Button identifies a mouse button.
type Button string

const (
	ButtonLeft  Button = "left"
	ButtonRight Button = "right"
)

// PrimaryModifier is the platform-neutral modifier token. It resolves to
// Ctrl or Cmd exactly once at startup; see Platform.
const PrimaryModifier = "primary"

// ActionError reports that an OS-level input action could not be delivered.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Action is one primitive input operation.
type Action interface {
	kind() string
}

// MoveTo moves the pointer to a named element.
type MoveTo struct {
	Element string
}

// Click presses a mouse button at a named element. Count 0 means 1.
// A Modifier (neutral token allowed) is held for the duration of the click.
type Click struct {
	Element  string
	Button   Button
	Count    int
	Modifier string
}

// TypeText inserts text with a small per-character delay so the target UI's
// input handling keeps up.
type TypeText struct {
	Text string
}

// KeyCombo presses a chord such as {"primary", "l"}. The last key is tapped
// while the preceding keys are held.
type KeyCombo struct {
	Keys []string
}

// Scroll issues wheel movement; negative Dy scrolls down in the original
// tool's convention, matching pyautogui-style deltas.
type Scroll struct {
	Dy    int
	Times int
}

func (MoveTo) kind() string   { return "move_to" }
func (Click) kind() string    { return "click" }
func (TypeText) kind() string { return "type_text" }
func (KeyCombo) kind() string { return "key_combo" }
func (Scroll) kind() string   { return "scroll" }

// Describe renders an action for logs and failure records.
func Describe(a Action) string {
	switch v := a.(type) {
	case MoveTo:
		return fmt.Sprintf("move_to(%s)", v.Element)
	case Click:
		n := v.Count
		if n == 0 {
			n = 1
		}
		if v.Modifier != "" {
			return fmt.Sprintf("click(%s, %s+%s, x%d)", v.Element, v.Modifier, v.Button, n)
		}
		return fmt.Sprintf("click(%s, x%d)", v.Element, n)
	case TypeText:
		return fmt.Sprintf("type_text(%d chars)", len([]rune(v.Text)))
	case KeyCombo:
		return fmt.Sprintf("key_combo(%v)", v.Keys)
	case Scroll:
		return fmt.Sprintf("scroll(%d x%d)", v.Dy, v.Times)
	default:
		return a.kind()
	}
}

// ElementNames collects the logical element names an action sequence touches,
// for eager coordinate validation.
func ElementNames(actions []Action) []string {
	var names []string
	for _, a := range actions {
		switch v := a.(type) {
		case MoveTo:
			names = append(names, v.Element)
		case Click:
			names = append(names, v.Element)
		}
	}
	return names
}

// Driver is the low-level input surface. Implementations deliver real input
// events; tests substitute fakes.
type Driver interface {
	MoveTo(p coords.Point) error
	Click(p coords.Point, button Button, clicks int) error
	InsertText(text string) error
	KeyDown(key string) error
	KeyUp(key string) error
	Scroll(dy int) error
	ReadClipboard() (string, error)
}
