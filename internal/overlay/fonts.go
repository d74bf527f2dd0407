package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
)

// FontRegistry maps font family names to font files and caches parsed
// fonts. Faces are created per render because they are not safe for
// concurrent use.
type FontRegistry struct {
	mu     sync.Mutex
	fonts  map[string]string
	parsed map[string]*truetype.Font
}

// NewFontRegistry creates an empty registry
func NewFontRegistry() *FontRegistry {
	return &FontRegistry{
		fonts:  make(map[string]string),
		parsed: make(map[string]*truetype.Font),
	}
}

// LoadDir registers every .ttf and .otf file in dir under its base name.
// A missing directory is not an error.
func (r *FontRegistry) LoadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read font dir: %w", err)
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".ttf" && ext != ".otf") {
			continue
		}
		r.Register(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), filepath.Join(dir, e.Name()))
	}
	return nil
}

// Register adds a font file under name
func (r *FontRegistry) Register(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fonts[strings.ToLower(name)] = path
}

// Get returns the file for family. Lookup is case-insensitive and also
// tries the family with a "-Bold" suffix removed.
func (r *FontRegistry) Get(family string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(family))
	if key == "" {
		return "", false
	}
	if p, ok := r.fonts[key]; ok {
		return p, true
	}
	if base, ok := strings.CutSuffix(key, "-bold"); ok {
		p, ok := r.fonts[base]
		return p, ok
	}
	return "", false
}

// List returns all registered family names, sorted
func (r *FontRegistry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.fonts))
	for name := range r.fonts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const bundledFont = "\x00gobold"

// Face returns a face for family at size px, falling back to the bundled
// Go Bold font. fellBack reports whether the fallback was used.
func (r *FontRegistry) Face(family string, size float64) (face font.Face, fellBack bool, err error) {
	key := bundledFont
	if p, ok := r.Get(family); ok {
		key = p
	}

	f, err := r.parse(key)
	if err != nil && key != bundledFont {
		f, err = r.parse(bundledFont)
		key = bundledFont
	}
	if err != nil {
		return nil, true, err
	}
	return truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingFull}), key == bundledFont, nil
}

func (r *FontRegistry) parse(key string) (*truetype.Font, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.parsed[key]; ok {
		return f, nil
	}

	var data []byte
	if key == bundledFont {
		data = gobold.TTF
	} else {
		b, err := os.ReadFile(key)
		if err != nil {
			return nil, err
		}
		data = b
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", key, err)
	}
	r.parsed[key] = f
	return f, nil
}
