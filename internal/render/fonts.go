package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
)

// fontDirs are searched for relative font paths not found as given.
var fontDirs = []string{
	"/usr/share/fonts/truetype/msttcorefonts",
	"/usr/share/fonts/truetype/dejavu",
	"/usr/share/fonts/TTF",
	"/usr/share/fonts",
	"/Library/Fonts",
	`C:\Windows\Fonts`,
}

// fontSource holds a parsed font. A nil font means the fixed bitmap face.
type fontSource struct {
	font *truetype.Font
	name string
}

// LoadFont parses a TrueType font file, looking for relative paths in the
// usual system font directories.
func LoadFont(path string) (*truetype.Font, error) {
	data, err := readFont(path)
	if err != nil {
		return nil, err
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", path, err)
	}
	return f, nil
}

func readFont(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil || filepath.IsAbs(path) {
		return data, err
	}
	for _, dir := range fontDirs {
		if data, derr := os.ReadFile(filepath.Join(dir, path)); derr == nil {
			return data, nil
		}
	}
	return nil, err
}

// resolveFont loads the preferred font and falls back to Go Regular, then
// to the built-in bitmap face. It never fails.
func resolveFont(path string) (fontSource, error) {
	var preferredErr error
	if path != "" {
		f, err := LoadFont(path)
		if err == nil {
			return fontSource{font: f, name: filepath.Base(path)}, nil
		}
		preferredErr = err
	}

	if f, err := truetype.Parse(goregular.TTF); err == nil {
		return fontSource{font: f, name: "goregular"}, preferredErr
	}
	return fontSource{name: "basic7x13"}, preferredErr
}

// face returns a new face at size. truetype faces cache glyphs and are not
// safe for concurrent use, so each render gets its own.
func (s fontSource) face(size float64) font.Face {
	if s.font == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(s.font, &truetype.Options{Size: size, Hinting: font.HintingNone})
}

func (s fontSource) scalable() bool {
	return s.font != nil
}
