package input

import "runtime"

// Platform captures the platform-dependent input capabilities. It is
// resolved once at startup and injected into the Executor; call sites never
// branch on the OS themselves.
type Platform struct {
	Name            string
	primaryModifier string
}

// PrimaryKey returns the physical key the neutral PrimaryModifier token maps
// to on this platform.
func (p Platform) PrimaryKey() string { return p.primaryModifier }

// PlatformFor builds the capability set for an OS name. Empty selects the
// running OS.
func PlatformFor(goos string) Platform {
	if goos == "" {
		goos = runtime.GOOS
	}
	mod := "ctrl"
	if goos == "darwin" {
		mod = "cmd"
	}
	return Platform{Name: goos, primaryModifier: mod}
}

// resolveKey translates a neutral token into a physical key for this
// platform; non-modifier keys pass through unchanged.
func (p Platform) resolveKey(key string) string {
	if key == PrimaryModifier {
		return p.primaryModifier
	}
	return key
}
