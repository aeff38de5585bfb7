package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/elementequinox"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/precess"
	"github.com/soniakeys/unit"
	"github.com/star/skywatch/internal/ephem"
)

// ParseTLE reads 3-line NORAD TLE format from r and returns parsed entries.
// Malformed entries are skipped with a warning log.
func ParseTLE(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []TLEEntry
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Resynchronize on the next line.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		if len(line1) < 32 {
			logger.Warn("skipping TLE entry with short line1", "name", name)
			i += 3
			continue
		}

		// NORAD ID is line1 cols 3-7.
		noradStr := strings.TrimSpace(line1[2:7])
		noradID, err := strconv.Atoi(noradStr)
		if err != nil {
			logger.Warn("skipping TLE entry with invalid NORAD ID", "norad_str", noradStr, "name", name)
			i += 3
			continue
		}

		// Epoch is line1 cols 19-32.
		epochStr := strings.TrimSpace(line1[18:32])
		epoch, err := parseTLEEpoch(epochStr)
		if err != nil {
			logger.Warn("skipping TLE entry with invalid epoch", "epoch_str", epochStr, "name", name, "error", err)
			i += 3
			continue
		}

		entries = append(entries, TLEEntry{
			NORADID: noradID,
			Name:    strings.TrimSpace(strings.TrimPrefix(name, "0 ")),
			Epoch:   epoch,
			Line1:   line1,
			Line2:   line2,
		})
		i += 3
	}

	return entries, nil
}

// parseTLEEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseTLEEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}

// errSkipRecord marks XEphem records of a type this package does not model.
var errSkipRecord = errors.New("unsupported record type")

// ParseXEphem reads an XEphem .edb database. Elliptic (e), parabolic (p) and
// hyperbolic (h) records become entries; other record types and malformed
// lines are skipped with a warning. Lines starting with '#' are comments.
func ParseXEphem(r io.Reader, logger *slog.Logger) ([]XEphemEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []XEphemEntry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, err := parseXEphemLine(line)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, errSkipRecord) {
				level = slog.LevelDebug
			}
			logger.Log(context.Background(), level, "skipping XEphem record", "line", lineNo, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading XEphem data: %w", err)
	}
	return entries, nil
}

func parseXEphemLine(line string) (XEphemEntry, error) {
	f := strings.Split(line, ",")
	if len(f) < 2 {
		return XEphemEntry{}, fmt.Errorf("too few fields in %q", line)
	}
	name, _, _ := strings.Cut(f[0], "|")
	name = strings.TrimSpace(name)
	if name == "" {
		return XEphemEntry{}, errors.New("empty name")
	}

	typ := strings.TrimSpace(f[1])
	if typ == "" {
		return XEphemEntry{}, fmt.Errorf("%s: empty record type", name)
	}
	p := fieldParser{fields: f, name: name}

	var o ephem.Orbit
	switch typ[0] {
	case 'e':
		if len(f) < 11 {
			return XEphemEntry{}, fmt.Errorf("%s: elliptic record has %d fields, want at least 11", name, len(f))
		}
		o = ephem.Orbit{
			Kind:        ephem.EllipticOrbit,
			Inc:         p.angle(2),
			Node:        p.angle(3),
			ArgPeri:     p.angle(4),
			SemiMajor:   p.float(5),
			DailyMotion: p.angle(6),
			Ecc:         p.float(7),
			MeanAnomaly: p.angle(8),
			Epoch:       p.date(9),
		}
		p.equinox(&o, 10)
		p.magnitude(&o, 11)
	case 'p':
		if len(f) < 8 {
			return XEphemEntry{}, fmt.Errorf("%s: parabolic record has %d fields, want at least 8", name, len(f))
		}
		o = ephem.Orbit{
			Kind:     ephem.ParabolicOrbit,
			PeriTime: p.date(2),
			Inc:      p.angle(3),
			ArgPeri:  p.angle(4),
			PeriDist: p.float(5),
			Node:     p.angle(6),
		}
		p.equinox(&o, 7)
		p.magnitude(&o, 8)
	case 'h':
		if len(f) < 9 {
			return XEphemEntry{}, fmt.Errorf("%s: hyperbolic record has %d fields, want at least 9", name, len(f))
		}
		o = ephem.Orbit{
			Kind:     ephem.HyperbolicOrbit,
			PeriTime: p.date(2),
			Inc:      p.angle(3),
			Node:     p.angle(4),
			ArgPeri:  p.angle(5),
			Ecc:      p.float(6),
			PeriDist: p.float(7),
		}
		p.equinox(&o, 8)
		p.magnitude(&o, 9)
	default:
		return XEphemEntry{}, fmt.Errorf("%s: %w %q", name, errSkipRecord, typ)
	}

	if p.err != nil {
		return XEphemEntry{}, p.err
	}
	if err := o.Validate(); err != nil {
		return XEphemEntry{}, fmt.Errorf("%s: %w", name, err)
	}
	return XEphemEntry{Name: name, Orbit: o}, nil
}

// fieldParser reads typed fields and keeps the first error.
type fieldParser struct {
	fields []string
	name   string
	err    error
}

func (p *fieldParser) float(i int) float64 {
	if p.err != nil {
		return 0
	}
	s := strings.TrimSpace(p.fields[i])
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.err = fmt.Errorf("%s: field %d: invalid number %q", p.name, i, s)
		return 0
	}
	return v
}

func (p *fieldParser) angle(i int) unit.Angle {
	return unit.AngleFromDeg(p.float(i))
}

// date parses an XEphem date, M/D.d/Y, optionally followed by "|" validity
// ranges, into a Julian day.
func (p *fieldParser) date(i int) float64 {
	if p.err != nil {
		return 0
	}
	s, _, _ := strings.Cut(strings.TrimSpace(p.fields[i]), "|")
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		p.err = fmt.Errorf("%s: field %d: invalid date %q", p.name, i, s)
		return 0
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.ParseFloat(parts[1], 64)
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day >= 32 {
		p.err = fmt.Errorf("%s: field %d: invalid date %q", p.name, i, s)
		return 0
	}
	return julian.CalendarGregorianToJD(year, month, day)
}

// equinox reads the reference equinox and reduces the angular elements to
// J2000. A missing equinox is taken as 2000.
func (p *fieldParser) equinox(o *ephem.Orbit, i int) {
	if p.err != nil {
		return
	}
	eq := p.float(i)
	if p.err != nil || eq == 0 || math.Abs(eq-2000) < 0.01 {
		return
	}
	if eq < 1000 || eq > 3000 {
		p.err = fmt.Errorf("%s: field %d: implausible equinox %v", p.name, i, eq)
		return
	}
	from := &elementequinox.Elements{Inc: o.Inc, Node: o.Node, Peri: o.ArgPeri}
	var to elementequinox.Elements
	if math.Abs(eq-1950) < 0.01 {
		elementequinox.ReduceB1950ToJ2000(from, &to)
	} else {
		precess.NewEclipticPrecessor(eq, 2000).ReduceElements(from, &to)
	}
	o.Inc, o.Node, o.ArgPeri = to.Inc, to.Node.Mod1(), to.Peri.Mod1()
}

// magnitude reads the optional magnitude model starting at field i. The first
// component is prefixed with 'g' (comet g,k) or 'H' (asteroid H,G); without a
// prefix g,k is assumed.
func (p *fieldParser) magnitude(o *ephem.Orbit, i int) {
	if p.err != nil || i >= len(p.fields) {
		return
	}
	first := strings.TrimSpace(p.fields[i])
	if first == "" {
		return
	}
	model := ephem.MagnitudeComet
	switch first[0] {
	case 'g':
		first = first[1:]
	case 'H':
		model = ephem.MagnitudeHG
		first = first[1:]
	}
	m1, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	if err != nil {
		// a bad magnitude is not worth dropping the orbit
		return
	}
	var m2 float64
	if i+1 < len(p.fields) {
		m2, _ = strconv.ParseFloat(strings.TrimSpace(p.fields[i+1]), 64)
	}
	o.Model, o.Mag1, o.Mag2 = model, m1, m2
}
