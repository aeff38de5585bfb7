package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/event"
	"github.com/star/skywatch/internal/httputil"
	"github.com/star/skywatch/internal/registry"
	"github.com/star/skywatch/internal/report"
	"github.com/star/skywatch/internal/schedule"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

type eventJSON struct {
	ID       string   `json:"id"`
	Body     string   `json:"body"`
	Kind     string   `json:"kind"`
	Date     string   `json:"date"`
	Azimuth  *float64 `json:"azimuth,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
}

func toEventJSON(e event.Event) eventJSON {
	j := eventJSON{
		ID:   e.ID.String(),
		Body: e.Body,
		Kind: string(e.Kind),
		Date: e.Date.UTC().Format(time.RFC3339),
	}
	v := e.AzAlt
	if e.Kind.MeasuresAltitude() {
		j.Altitude = &v
	} else {
		j.Azimuth = &v
	}
	return j
}

// eventsHandler lists pending events in date order.
// GET /api/v1/events?limit=100&body=Sun&kind=rise
func eventsHandler(q *schedule.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		limit := defaultEventLimit
		if v := query.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxEventLimit {
				httputil.WriteError(w, http.StatusBadRequest, "invalid limit parameter, must be 1-1000")
				return
			}
			limit = n
		}

		var kind event.Kind
		if v := query.Get("kind"); v != "" {
			k, err := event.ParseKind(v)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			kind = k
		}
		body := query.Get("body")

		out := make([]eventJSON, 0, limit)
		pending := q.Snapshot()
		for _, e := range pending {
			if len(out) == limit {
				break
			}
			if body != "" && e.Body != body {
				continue
			}
			if kind != "" && e.Kind != kind {
				continue
			}
			out = append(out, toEventJSON(e))
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"pending": len(pending),
			"count":   len(out),
			"events":  out,
		})
	}
}

type bodyJSON struct {
	Name  string `json:"name"`
	Group string `json:"group"`
	Type  string `json:"type"`
}

func targetType(t ephem.Target) string {
	switch t.(type) {
	case ephem.Sun, *ephem.Sun:
		return "sun"
	case ephem.Moon, *ephem.Moon:
		return "moon"
	case *ephem.Planet:
		return "planet"
	case *ephem.Star:
		return "star"
	case *ephem.MinorBody:
		return "minor"
	case *ephem.Satellite:
		return "satellite"
	}
	return "unknown"
}

// bodiesHandler lists registered bodies, optionally one group.
// GET /api/v1/bodies?group=comets
func bodiesHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := r.URL.Query().Get("group")

		out := []bodyJSON{}
		for _, g := range reg.Groups() {
			if group != "" && g != group {
				continue
			}
			for _, t := range reg.Group(g) {
				out = append(out, bodyJSON{Name: t.Name(), Group: g, Type: targetType(t)})
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"count":  len(out),
			"bodies": out,
		})
	}
}

type positionJSON struct {
	Name       string   `json:"name"`
	Group      string   `json:"group,omitempty"`
	Type       string   `json:"type"`
	Time       string   `json:"time"`
	Azimuth    float64  `json:"azimuth"`
	Altitude   float64  `json:"altitude"`
	RAHours    *float64 `json:"ra_hours,omitempty"`
	DecDegrees *float64 `json:"dec_degrees,omitempty"`
	DistanceAU *float64 `json:"distance_au,omitempty"`
	RangeKm    *float64 `json:"range_km,omitempty"`
	Magnitude  *float64 `json:"magnitude,omitempty"`
	NORADID    int      `json:"norad_id,omitempty"`
	Up         bool     `json:"up"`
}

func fromPosition(p report.Position, t ephem.Target, at time.Time) positionJSON {
	ra := p.RA.Hour()
	dec := p.Dec.Deg()
	j := positionJSON{
		Name:       p.Name,
		Type:       targetType(t),
		Time:       at.UTC().Format(time.RFC3339),
		Azimuth:    p.Az,
		Altitude:   p.Alt,
		RAHours:    &ra,
		DecDegrees: &dec,
		Up:         p.Up,
	}
	if p.Distance > 0 {
		d := p.Distance
		j.DistanceAU = &d
	}
	switch b := t.(type) {
	case *ephem.Star:
		m := b.Magnitude()
		j.Magnitude = &m
	case *ephem.MinorBody:
		if m, ok := b.Magnitude(at); ok {
			j.Magnitude = &m
		}
	}
	return j
}

func position(o *ephem.Observer, t ephem.Target, at time.Time) (positionJSON, error) {
	switch b := t.(type) {
	case ephem.Body:
		return fromPosition(report.Positions(o, []ephem.Body{b}, at)[0], t, at), nil
	case *ephem.Satellite:
		look, _, err := o.Look(b, at)
		if err != nil {
			return positionJSON{}, err
		}
		rng := look.RangeKm
		return positionJSON{
			Name:     b.Name(),
			Type:     "satellite",
			Time:     at.UTC().Format(time.RFC3339),
			Azimuth:  look.AzimuthDeg,
			Altitude: look.ElevationDeg,
			RangeKm:  &rng,
			NORADID:  b.NORADID(),
			Up:       look.ElevationDeg > 0,
		}, nil
	}
	return positionJSON{}, ephem.ErrUnsupportedKind
}

// bodyHandler reports where a body is now and its pending events.
// GET /api/v1/bodies/{name}
func bodyHandler(o *ephem.Observer, reg *registry.Registry, q *schedule.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		t, ok := reg.Get(name)
		if !ok {
			httputil.WriteError(w, http.StatusNotFound, "unknown body")
			return
		}

		now := time.Now()
		pos, err := position(o, t, now)
		if err != nil {
			httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		pos.Group, _ = reg.GroupOf(name)

		events := []eventJSON{}
		for _, e := range q.Snapshot() {
			if e.Body == name {
				events = append(events, toEventJSON(e))
			}
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"position": pos,
			"events":   events,
		})
	}
}

// skyHandler reports every registered non-satellite body at one instant.
// GET /api/v1/sky?at=2026-03-20T12:00:00Z&group=stars&up=true
func skyHandler(o *ephem.Observer, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		at := time.Now()
		if v := query.Get("at"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, "invalid at parameter, must be RFC3339")
				return
			}
			at = parsed
		}
		onlyUp := false
		if v := query.Get("up"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, "invalid up parameter, must be a boolean")
				return
			}
			onlyUp = b
		}
		group := query.Get("group")

		out := []positionJSON{}
		for _, g := range reg.Groups() {
			if group != "" && g != group {
				continue
			}
			var bodies []ephem.Body
			var targets []ephem.Target
			for _, t := range reg.Group(g) {
				if b, ok := t.(ephem.Body); ok {
					bodies = append(bodies, b)
					targets = append(targets, t)
				}
			}
			for i, p := range report.Positions(o, bodies, at) {
				if onlyUp && !p.Up {
					continue
				}
				j := fromPosition(p, targets[i], at)
				j.Group = g
				out = append(out, j)
			}
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"observer": o.Name,
			"time":     at.UTC().Format(time.RFC3339),
			"count":    len(out),
			"bodies":   out,
		})
	}
}

type catalogJSON struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	LastModified string `json:"last_modified"`
	LoadedAt     string `json:"loaded_at"`
	AgeSeconds   int64  `json:"age_seconds"`
	Bodies       int    `json:"bodies"`
	Skipped      int    `json:"skipped"`
	EpochMin     string `json:"epoch_min,omitempty"`
	EpochMax     string `json:"epoch_max,omitempty"`
}

func toCatalogJSON(ds *catalog.Dataset, now time.Time) catalogJSON {
	j := catalogJSON{
		Name:         ds.Source.Name,
		URL:          ds.Source.URL,
		Format:       string(ds.Source.Format),
		LastModified: ds.LastModified.UTC().Format(time.RFC3339),
		LoadedAt:     ds.LoadedAt.UTC().Format(time.RFC3339),
		AgeSeconds:   int64(ds.Age(now).Seconds()),
		Bodies:       len(ds.Targets),
		Skipped:      ds.Skipped,
	}
	if !ds.EpochRange.Min.IsZero() {
		j.EpochMin = ds.EpochRange.Min.UTC().Format(time.RFC3339)
		j.EpochMax = ds.EpochRange.Max.UTC().Format(time.RFC3339)
	}
	return j
}

// catalogsHandler lists the loaded catalogs and how old they are.
// GET /api/v1/catalogs
func catalogsHandler(store *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		out := []catalogJSON{}
		for _, ds := range store.All() {
			out = append(out, toCatalogJSON(ds, now))
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"catalogs": out})
	}
}

// refreshHandler forces a download of one catalog.
// POST /api/v1/catalogs/{name}/refresh
func refreshHandler(logger *slog.Logger, ref *catalog.Refresher, store *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		err := ref.Refresh(r.Context(), name)
		switch {
		case errors.Is(err, catalog.ErrUnknownCatalog):
			httputil.WriteError(w, http.StatusNotFound, "unknown catalog")
			return
		case err != nil:
			logger.Warn("manual catalog refresh failed", "component", "api", "catalog", name, "error", err)
			httputil.WriteError(w, http.StatusBadGateway, err.Error())
			return
		}

		ds := store.Get(name)
		if ds == nil {
			httputil.WriteError(w, http.StatusBadGateway, "catalog refreshed but not loaded")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toCatalogJSON(ds, time.Now()))
	}
}
