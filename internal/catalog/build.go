package catalog

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/skywatch/internal/ephem"
)

// Build parses a payload in the source's format and turns every usable
// record into an ephem target. Records that fail to initialize are counted
// in Skipped; duplicate names keep the first record.
func Build(src Source, p Payload, logger *slog.Logger) (*Dataset, error) {
	ds := &Dataset{
		Source:       src,
		LastModified: p.LastModified,
		LoadedAt:     time.Now(),
	}
	seen := make(map[string]bool)
	add := func(t ephem.Target) {
		if seen[t.Name()] {
			ds.Skipped++
			logger.Debug("duplicate catalog entry", "catalog", src.Name, "name", t.Name())
			return
		}
		seen[t.Name()] = true
		ds.Targets = append(ds.Targets, t)
	}

	switch src.Format {
	case FormatTLE:
		entries, err := ParseTLE(bytes.NewReader(p.Body), logger)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			sat, err := ephem.NewSatellite(e.Name, e.Line1, e.Line2)
			if err != nil {
				ds.Skipped++
				logger.Warn("skipping satellite", "catalog", src.Name, "name", e.Name, "error", err)
				continue
			}
			if ds.EpochRange.Min.IsZero() || e.Epoch.Before(ds.EpochRange.Min) {
				ds.EpochRange.Min = e.Epoch
			}
			if e.Epoch.After(ds.EpochRange.Max) {
				ds.EpochRange.Max = e.Epoch
			}
			add(sat)
		}

	case FormatXEphem:
		entries, err := ParseXEphem(bytes.NewReader(p.Body), logger)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			mb, err := ephem.NewMinorBody(e.Name, e.Orbit)
			if err != nil {
				ds.Skipped++
				logger.Warn("skipping minor body", "catalog", src.Name, "name", e.Name, "error", err)
				continue
			}
			add(mb)
		}

	default:
		return nil, fmt.Errorf("catalog %s: unknown format %q", src.Name, src.Format)
	}

	if len(ds.Targets) == 0 {
		return nil, fmt.Errorf("catalog %s: no usable records", src.Name)
	}
	return ds, nil
}
