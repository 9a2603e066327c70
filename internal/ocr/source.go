package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"docpipe/internal/services"
)

// Page is one rendered page image.
type Page struct {
	Number int
	Name   string
	MIME   string
	Data   []byte
}

// Source yields the pages of a document in page order.
type Source interface {
	Pages(ctx context.Context) ([]Page, error)
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// IsImage reports whether path names a supported page image.
func IsImage(path string) bool {
	_, ok := imageTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DirSource reads page images from a directory, or a single image file.
// Directory entries are ordered naturally, so page2.png precedes page10.png.
type DirSource struct {
	Path string
}

// Pages loads every supported image under Path.
func (s DirSource) Pages(ctx context.Context) ([]Page, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ocr", "open source", s.Path, err)
	}
	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(s.Path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ocr", "list pages", s.Path, err)
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() && IsImage(entry.Name()) {
				files = append(files, filepath.Join(s.Path, entry.Name()))
			}
		}
		sort.SliceStable(files, func(i, j int) bool {
			return naturalLess(filepath.Base(files[i]), filepath.Base(files[j]))
		})
	} else {
		if !IsImage(s.Path) {
			return nil, services.Wrap(services.ErrValidation, "ocr", "open source", fmt.Sprintf("unsupported page image %q", s.Path), nil)
		}
		files = []string{s.Path}
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrValidation, "ocr", "list pages", fmt.Sprintf("no page images in %s", s.Path), nil)
	}

	pages := make([]Page, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ocr", "read page", file, err)
		}
		pages = append(pages, Page{
			Number: i + 1,
			Name:   filepath.Base(file),
			MIME:   imageTypes[strings.ToLower(filepath.Ext(file))],
			Data:   data,
		})
	}
	return pages, nil
}

// naturalLess compares names treating digit runs as numbers.
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, restA := leadingNumber(a)
			nb, restB := leadingNumber(b)
			if na != nb {
				if len(na) != len(nb) {
					return len(na) < len(nb)
				}
				return na < nb
			}
			a, b = restA, restB
			continue
		}
		la, lb := unicode.ToLower(ca), unicode.ToLower(cb)
		if la != lb {
			return la < lb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

// leadingNumber splits off the digit prefix of s with leading zeros removed.
func leadingNumber(s string) (string, string) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	digits := strings.TrimLeft(s[:end], "0")
	return digits, s[end:]
}
