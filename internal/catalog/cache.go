package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Cache is the on-disk copy of one catalog. The first line of the file is
// "# " followed by the server's Last-Modified date in HTTP format; the rest is
// the catalog text as downloaded.
type Cache struct {
	path string
}

// NewCache creates a Cache for the named catalog under dir.
func NewCache(dir, name string) *Cache {
	return &Cache{path: filepath.Join(dir, name+".txt")}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Load reads the cached catalog. A missing file returns an error matching
// os.ErrNotExist; a file without a readable header returns ErrMalformedCache.
func (c *Cache) Load() (Payload, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return Payload{}, fmt.Errorf("reading cache file: %w", err)
	}

	header, body, _ := bytes.Cut(data, []byte("\n"))
	line := strings.TrimSpace(strings.TrimSuffix(string(header), "\r"))
	stamp, ok := strings.CutPrefix(line, "#")
	if !ok {
		return Payload{}, fmt.Errorf("%w: %s: first line is not a date header", ErrMalformedCache, c.path)
	}
	lastModified, err := http.ParseTime(strings.TrimSpace(stamp))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %s: %v", ErrMalformedCache, c.path, err)
	}

	return Payload{Body: body, LastModified: lastModified.UTC()}, nil
}

// Write replaces the cache file atomically.
func (c *Cache) Write(p Payload) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "# %s\n", p.LastModified.UTC().Format(http.TimeFormat))
	w.Write(p.Body)
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}
