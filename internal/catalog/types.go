// Package catalog keeps the downloadable body catalogs (comets, satellites)
// current: it fetches them over HTTP, caches each one on disk behind a
// "# <Last-Modified>" header line, parses them into ephem targets and swaps
// the result into the registry when a refresh succeeds.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/star/skywatch/internal/ephem"
)

var (
	// ErrNotModified means the server answered 304 to a conditional fetch.
	ErrNotModified = errors.New("catalog not modified")
	// ErrMalformedCache means a cache file is missing its header line.
	ErrMalformedCache = errors.New("malformed catalog cache")
	// ErrUnknownCatalog means no configured source has the requested name.
	ErrUnknownCatalog = errors.New("unknown catalog")
)

// Format is the text format of a catalog.
type Format string

const (
	FormatTLE    Format = "tle"
	FormatXEphem Format = "xephem"
)

// ParseFormat converts a config string to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTLE, FormatXEphem:
		return f, nil
	}
	return "", fmt.Errorf("unknown catalog format %q", s)
}

// Source describes one remote catalog.
type Source struct {
	Name     string // also the registry group and cache file name
	URL      string
	Format   Format
	Required bool // startup fails if neither cache nor download yields data

	// ExtraURLs are fetched after URL and appended; their failures only warn.
	ExtraURLs []string
}

// Default catalog sources.
var (
	CometsSource = Source{
		Name:   "comets",
		URL:    "http://www.minorplanetcenter.net/iau/Ephemerides/Comets/Soft03Cmt.txt",
		Format: FormatXEphem,
	}
	VisualSource = Source{
		Name:   "satellites",
		URL:    "https://celestrak.org/NORAD/elements/gp.php?GROUP=visual&FORMAT=tle",
		Format: FormatTLE,
		ExtraURLs: []string{
			"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
		},
	}
	StationsSource = Source{
		Name:   "stations",
		URL:    "https://celestrak.org/NORAD/elements/gp.php?GROUP=stations&FORMAT=tle",
		Format: FormatTLE,
	}
)

// DefaultSources are used when the configuration lists none.
func DefaultSources() []Source {
	return []Source{CometsSource, VisualSource, StationsSource}
}

// TLEEntry represents a single satellite's two-line element set.
type TLEEntry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// XEphemEntry is one minor body record from an XEphem database file.
type XEphemEntry struct {
	Name  string
	Orbit ephem.Orbit
}

// EpochRange represents the minimum and maximum element epochs in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Payload is the raw catalog text and the server's Last-Modified date.
type Payload struct {
	Body         []byte
	LastModified time.Time
}

// Dataset is a parsed catalog as currently published to the registry.
type Dataset struct {
	Source       Source
	LastModified time.Time
	LoadedAt     time.Time
	EpochRange   EpochRange
	Targets      []ephem.Target
	Skipped      int // records that failed to parse or initialize
}

// Age is how old the catalog is by its Last-Modified date.
func (d *Dataset) Age(now time.Time) time.Duration {
	return now.Sub(d.LastModified)
}
