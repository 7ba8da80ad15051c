// Package media locates image files and reads their content.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/steveyegge/mediasift/internal/types"
)

// ErrNotFound is returned by MemorySource for unknown items
var ErrNotFound = errors.New("item content not found")

// Source provides the raw bytes of an item
type Source interface {
	Read(ctx context.Context, item types.Item) ([]byte, error)
}

// FileSource reads items from disk. Item.Path is used when set, otherwise
// Item.ID is resolved relative to Root.
type FileSource struct {
	Root string
}

// Read reads the item's file
func (s FileSource) Read(ctx context.Context, item types.Item) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := item.Path
	if path == "" {
		path = filepath.Join(s.Root, filepath.FromSlash(item.ID))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// MemorySource serves item content from memory
type MemorySource struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemorySource creates an empty in-memory source
func NewMemorySource() *MemorySource {
	return &MemorySource{data: make(map[string][]byte)}
}

// Put stores content for an item id
func (s *MemorySource) Put(id string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = content
}

// Read returns the stored content
func (s *MemorySource) Read(ctx context.Context, item types.Item) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.data[item.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, item.ID)
	}
	return content, nil
}

// imageExtensions lists the file types the hash codec can decode
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsImagePath reports whether path has a supported image extension
func IsImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Scan walks root and returns one item per image file, sorted by id.
// Item ids are slash-separated paths relative to root.
func Scan(root string) ([]types.Item, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var items []types.Item
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsImagePath(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		items = append(items, types.Item{ID: filepath.ToSlash(rel), Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// DetectMediaType sniffs the MIME type of image content
func DetectMediaType(data []byte) string {
	return http.DetectContentType(data)
}

// ToPNG decodes image content in any supported format and re-encodes it as PNG
func ToPNG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
