package input

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sellflow/internal/coords"
)

// Executor maps abstract actions onto driver primitives. It owns no locking;
// the pipeline serializes UI access with the control lock.
type Executor struct {
	driver    Driver
	platform  Platform
	set       *coords.Set
	typeDelay time.Duration
	logger    *zap.Logger
}

// NewExecutor builds an executor over a driver and a validated coordinate
// set.
func NewExecutor(driver Driver, platform Platform, set *coords.Set, typeDelay time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if typeDelay <= 0 {
		typeDelay = 40 * time.Millisecond
	}
	return &Executor{
		driver:    driver,
		platform:  platform,
		set:       set,
		typeDelay: typeDelay,
		logger:    logger,
	}
}

// Perform executes a single action. Cancellation is honored between driver
// primitives, never mid-event.
func (e *Executor) Perform(ctx context.Context, action Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.logger.Debug("perform", zap.String("action", Describe(action)))

	switch v := action.(type) {
	case MoveTo:
		return e.moveTo(v)
	case Click:
		return e.click(ctx, v)
	case TypeText:
		return e.typeText(ctx, v)
	case KeyCombo:
		return e.keyCombo(v)
	case Scroll:
		return e.scroll(ctx, v)
	default:
		return &ActionError{Action: Describe(action), Err: fmt.Errorf("unsupported action type %T", action)}
	}
}

// PerformAll executes actions in order, stopping at the first failure.
func (e *Executor) PerformAll(ctx context.Context, actions []Action) error {
	for _, a := range actions {
		if err := e.Perform(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// ReadClipboard exposes the driver clipboard for text extraction flows.
func (e *Executor) ReadClipboard(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.driver.ReadClipboard()
	if err != nil {
		return "", &ActionError{Action: "read_clipboard", Err: err}
	}
	return text, nil
}

// Platform returns the resolved platform capabilities.
func (e *Executor) Platform() Platform { return e.platform }

func (e *Executor) resolve(element string) (coords.Point, error) {
	loc, err := e.set.Resolve(element)
	if err != nil {
		return coords.Point{}, err
	}
	return loc.Target(), nil
}

func (e *Executor) moveTo(v MoveTo) error {
	p, err := e.resolve(v.Element)
	if err != nil {
		return err
	}
	if err := e.driver.MoveTo(p); err != nil {
		return &ActionError{Action: Describe(v), Err: err}
	}
	return nil
}

func (e *Executor) click(ctx context.Context, v Click) error {
	p, err := e.resolve(v.Element)
	if err != nil {
		return err
	}

	button := v.Button
	if button == "" {
		button = ButtonLeft
	}
	count := v.Count
	if count < 1 {
		count = 1
	}

	if v.Modifier != "" {
		key := e.platform.resolveKey(v.Modifier)
		if err := e.driver.KeyDown(key); err != nil {
			return &ActionError{Action: Describe(v), Err: err}
		}
		defer func() { _ = e.driver.KeyUp(key) }()
	}

	if err := e.driver.MoveTo(p); err != nil {
		return &ActionError{Action: Describe(v), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.driver.Click(p, button, count); err != nil {
		return &ActionError{Action: Describe(v), Err: err}
	}
	return nil
}

func (e *Executor) typeText(ctx context.Context, v TypeText) error {
	for _, r := range v.Text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.driver.InsertText(string(r)); err != nil {
			return &ActionError{Action: Describe(v), Err: err}
		}
		time.Sleep(e.typeDelay)
	}
	return nil
}

func (e *Executor) keyCombo(v KeyCombo) error {
	if len(v.Keys) == 0 {
		return &ActionError{Action: Describe(v), Err: fmt.Errorf("empty key combo")}
	}

	resolved := make([]string, len(v.Keys))
	for i, k := range v.Keys {
		resolved[i] = e.platform.resolveKey(k)
	}

	held := resolved[:len(resolved)-1]
	tap := resolved[len(resolved)-1]

	for i, k := range held {
		if err := e.driver.KeyDown(k); err != nil {
			// Release whatever was already pressed.
			for j := i - 1; j >= 0; j-- {
				_ = e.driver.KeyUp(held[j])
			}
			return &ActionError{Action: Describe(v), Err: err}
		}
	}
	defer func() {
		for j := len(held) - 1; j >= 0; j-- {
			_ = e.driver.KeyUp(held[j])
		}
	}()

	if err := e.driver.KeyDown(tap); err != nil {
		return &ActionError{Action: Describe(v), Err: err}
	}
	if err := e.driver.KeyUp(tap); err != nil {
		return &ActionError{Action: Describe(v), Err: err}
	}
	return nil
}

func (e *Executor) scroll(ctx context.Context, v Scroll) error {
	times := v.Times
	if times < 1 {
		times = 1
	}
	for i := 0; i < times; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.driver.Scroll(v.Dy); err != nil {
			return &ActionError{Action: Describe(v), Err: err}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil
}
