package input

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"
	"unicode"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"sellflow/internal/coords"
)

// SessionConfig configures the browser surface the workflow drives.
type SessionConfig struct {
	DebuggerURL    string `yaml:"debugger_url"` // attach to a running browser; empty launches one
	Headless       bool   `yaml:"headless"`
	StartURL       string `yaml:"start_url"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
}

// Session owns the single browser page all input events target. It
// implements Driver and the screen package's Capturer.
type Session struct {
	cfg SessionConfig

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

// NewSession creates an unstarted session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.ViewportWidth == 0 {
		cfg.ViewportWidth = 1920
	}
	if cfg.ViewportHeight == 0 {
		cfg.ViewportHeight = 1080
	}
	return &Session{cfg: cfg}
}

// Start connects to the configured browser, launching one when no debugger
// URL is set, and opens the working page.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		return nil
	}

	controlURL := s.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(s.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: s.cfg.StartURL})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("open page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  s.cfg.ViewportWidth,
		Height: s.cfg.ViewportHeight,
	}); err != nil {
		_ = browser.Close()
		return fmt.Errorf("set viewport: %w", err)
	}

	s.browser = browser
	s.page = page
	return nil
}

// Close tears the session down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	s.page = nil
	return err
}

func (s *Session) activePage() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, fmt.Errorf("session not started")
	}
	return s.page, nil
}

// MoveTo implements Driver.
func (s *Session) MoveTo(p coords.Point) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	return page.Mouse.MoveTo(proto.Point{X: float64(p.X), Y: float64(p.Y)})
}

// Click implements Driver. The pointer is assumed to already be at p; the
// Executor moves before clicking.
func (s *Session) Click(p coords.Point, button Button, clicks int) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	b := proto.InputMouseButtonLeft
	if button == ButtonRight {
		b = proto.InputMouseButtonRight
	}
	return page.Mouse.Click(b, clicks)
}

// InsertText implements Driver.
func (s *Session) InsertText(text string) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	return page.InsertText(text)
}

// KeyDown implements Driver.
func (s *Session) KeyDown(key string) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	k, err := lookupKey(key)
	if err != nil {
		return err
	}
	return page.Keyboard.Press(k)
}

// KeyUp implements Driver.
func (s *Session) KeyUp(key string) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	k, err := lookupKey(key)
	if err != nil {
		return err
	}
	return page.Keyboard.Release(k)
}

// Scroll implements Driver. Positive dy in the workflow's convention means
// scrolling up, so the wheel delta is inverted here.
func (s *Session) Scroll(dy int) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	return page.Mouse.Scroll(0, float64(-dy), 1)
}

// ReadClipboard implements Driver via the page clipboard API.
func (s *Session) ReadClipboard() (string, error) {
	page, err := s.activePage()
	if err != nil {
		return "", err
	}
	res, err := page.Eval(`() => navigator.clipboard.readText()`)
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return res.Value.Str(), nil
}

// Capture grabs a PNG of the given region and decodes it. It satisfies the
// screen package's Capturer.
func (s *Session) Capture(r coords.Region) (image.Image, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}

	data, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      float64(r.X),
			Y:      float64(r.Y),
			Width:  float64(r.Width),
			Height: float64(r.Height),
			Scale:  1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("capture region: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	return img, nil
}

// WaitStable gives the page a moment to settle after navigation-heavy
// actions.
func (s *Session) WaitStable(d time.Duration) {
	page, err := s.activePage()
	if err != nil {
		return
	}
	_ = page.WaitStable(d)
}

func lookupKey(name string) (input.Key, error) {
	switch name {
	case "ctrl", "control":
		return input.ControlLeft, nil
	case "cmd", "meta", "command":
		return input.MetaLeft, nil
	case "alt":
		return input.AltLeft, nil
	case "shift":
		return input.ShiftLeft, nil
	case "enter":
		return input.Enter, nil
	case "tab":
		return input.Tab, nil
	case "escape", "esc":
		return input.Escape, nil
	case "backspace":
		return input.Backspace, nil
	case "pagedown":
		return input.PageDown, nil
	case "pageup":
		return input.PageUp, nil
	case "home":
		return input.Home, nil
	case "end":
		return input.End, nil
	case "up":
		return input.ArrowUp, nil
	case "down":
		return input.ArrowDown, nil
	case "left":
		return input.ArrowLeft, nil
	case "right":
		return input.ArrowRight, nil
	case "delete":
		return input.Delete, nil
	}
	runes := []rune(name)
	if len(runes) == 1 && (unicode.IsLetter(runes[0]) || unicode.IsDigit(runes[0])) {
		return input.Key(unicode.ToLower(runes[0])), nil
	}
	return 0, fmt.Errorf("unknown key %q", name)
}
