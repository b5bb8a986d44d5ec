package coords

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSet(t *testing.T, dir, platform, profile, content string) {
	t.Helper()
	full := filepath.Join(dir, platform)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(full, profile+".json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_PointsAndRegions(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "linux", "mercari", `{
		"_metadata": {"calibrated_at": "2026-08-01"},
		"logo": [120, 80],
		"search_bar": {"x": 400, "y": 96},
		"sold_history_area": {"x": 100, "y": 400, "width": 800, "height": 600}
	}`)

	set, err := NewStore(dir).Load("linux", "mercari")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if set.Len() != 3 {
		t.Errorf("expected 3 elements (metadata skipped), got %d", set.Len())
	}

	logo, err := set.Resolve("logo")
	if err != nil {
		t.Fatalf("Resolve logo: %v", err)
	}
	if logo.IsRegion() || logo.Target() != (Point{X: 120, Y: 80}) {
		t.Errorf("unexpected logo location: %+v", logo)
	}

	area, err := set.Resolve("sold_history_area")
	if err != nil {
		t.Fatalf("Resolve sold_history_area: %v", err)
	}
	if !area.IsRegion() {
		t.Fatal("expected region for sold_history_area")
	}
	if got := area.Target(); got != (Point{X: 500, Y: 700}) {
		t.Errorf("expected region center (500,700), got %+v", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewStore(t.TempDir()).Load("linux", "mercari")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "linux", "mercari", `{"logo": [120`)
	_, err := NewStore(dir).Load("linux", "mercari")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for malformed file, got %v", err)
	}
}

func TestLoad_BadEntry(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "linux", "mercari", `{"logo": [1, 2, 3]}`)
	if _, err := NewStore(dir).Load("linux", "mercari"); err == nil {
		t.Error("expected error for 3-element coordinate array")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "linux", "mercari", `{"logo": [1, 2], "search_bar": [3, 4]}`)
	set, err := NewStore(dir).Load("linux", "mercari")
	if err != nil {
		t.Fatal(err)
	}

	if err := set.Validate([]string{"logo", "search_bar"}); err != nil {
		t.Errorf("expected validation pass, got %v", err)
	}

	err = set.Validate([]string{"logo", "listing_submit"})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for missing element, got %v", err)
	}
}

func TestResolve_UnknownIsConfigError(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "linux", "mercari", `{"logo": [1, 2]}`)
	set, err := NewStore(dir).Load("linux", "mercari")
	if err != nil {
		t.Fatal(err)
	}
	_, err = set.Resolve("nope")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
