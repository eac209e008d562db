// Package prefs provides JSON-based application preferences.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"gridfill/internal/canvas"
	"gridfill/internal/fit"
	"gridfill/internal/logging"
	"gridfill/pkg/colorutil"
)

const prefsFile = "preferences.json"

// Preference keys.
const (
	KeyPenColor     = "pen.color"
	KeyPenWidth     = "pen.width"
	KeyEraserRadius = "eraser.radius"
	KeyFontSize     = "text.size"
	KeyFontFile     = "text.font"
	KeyFitMode      = "place.fit"
	KeyCellColor    = "place.cell_color"
	KeyTolerant     = "detect.tolerant"
	KeyStoreDir     = "store.dir"
	KeyStoreDSN     = "store.dsn"
)

// Prefs stores application preferences as a key-value map.
type Prefs struct {
	mu     sync.RWMutex
	values map[string]interface{}
	path   string
}

// DefaultPath returns ~/.config/gridfill/preferences.json or the platform
// equivalent.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "gridfill", prefsFile)
}

// Load reads preferences from DefaultPath.
// Returns a Prefs with defaults if the file doesn't exist.
func Load() *Prefs {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads preferences from path. A missing or unreadable file yields
// empty preferences that will be written to path on Save.
func LoadFrom(path string) *Prefs {
	p := &Prefs{
		values: make(map[string]interface{}),
		path:   path,
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return p
	}
	if err := json.Unmarshal(data, &p.values); err != nil {
		logging.Logger().Warn("ignoring malformed preferences", "path", path, "err", err)
		p.values = make(map[string]interface{})
	}
	return p
}

// Path returns the file the preferences are saved to.
func (p *Prefs) Path() string { return p.path }

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}

// Float returns a float64 preference, or 0 if not set.
func (p *Prefs) Float(key string) float64 {
	return p.FloatWithFallback(key, 0)
}

// FloatWithFallback returns a float64 preference, or fallback if not set.
func (p *Prefs) FloatWithFallback(key string, fallback float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// String returns a string preference, or "" if not set.
func (p *Prefs) String(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetString stores a string preference.
func (p *Prefs) SetString(key string, val string) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// Bool returns a bool preference, or fallback if not set.
func (p *Prefs) Bool(key string, fallback bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// SetBool stores a bool preference.
func (p *Prefs) SetBool(key string, val bool) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// Style returns the tool style, falling back to canvas.DefaultStyle for
// unset or malformed entries.
func (p *Prefs) Style() canvas.Style {
	st := canvas.DefaultStyle()
	if hex := p.String(KeyPenColor); hex != "" {
		if c, err := colorutil.ParseHex(hex); err == nil {
			st.Color = c
		} else {
			logging.Logger().Warn("bad pen color preference", "value", hex, "err", err)
		}
	}
	if w := p.Float(KeyPenWidth); w > 0 {
		st.Width = w
	}
	if r := p.Float(KeyEraserRadius); r > 0 {
		st.EraserRadius = r
	}
	if s := p.Float(KeyFontSize); s > 0 {
		st.FontSize = s
	}
	return st
}

// SetStyle stores the tool style.
func (p *Prefs) SetStyle(st canvas.Style) {
	p.SetString(KeyPenColor, colorutil.Hex(st.Color))
	p.SetFloat(KeyPenWidth, st.Width)
	p.SetFloat(KeyEraserRadius, st.EraserRadius)
	p.SetFloat(KeyFontSize, st.FontSize)
}

// FitMode returns the placement mode, CropFill unless set.
func (p *Prefs) FitMode() fit.Mode {
	m, err := fit.ParseMode(p.String(KeyFitMode))
	if err != nil {
		return fit.CropFill
	}
	return m
}

// CanvasOptions builds compositor options from the stored preferences.
func (p *Prefs) CanvasOptions() []canvas.Option {
	opts := []canvas.Option{canvas.WithStyle(p.Style())}
	if hex := p.String(KeyCellColor); hex != "" {
		if c, err := colorutil.ParseHex(hex); err == nil {
			opts = append(opts, canvas.WithCellBackground(c))
		}
	}
	if path := p.String(KeyFontFile); path != "" {
		faces, err := canvas.FacesFromFile(path)
		if err != nil {
			logging.Logger().Warn("using bundled font", "err", err)
		} else {
			opts = append(opts, canvas.WithFaces(faces))
		}
	}
	return opts
}
