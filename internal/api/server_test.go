package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/star/skywatch/internal/auth"
	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/event"
	"github.com/star/skywatch/internal/registry"
	"github.com/star/skywatch/internal/schedule"
)

const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058"
	issTLE   = "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fixture struct {
	deps    Deps
	handler http.Handler
	tleURL  string
}

func newFixture(t *testing.T, authCfg auth.Config) *fixture {
	t.Helper()
	logger := testLogger()

	obs, err := ephem.NewObserver("Columbus", 39.9612, -82.9988, 275)
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New(logger)
	if err := reg.LoadStatic("", []string{"Sirius", "Vega"}); err != nil {
		t.Fatal(err)
	}

	tleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Fri, 14 Feb 2025 04:00:00 GMT")
		io.WriteString(w, issTLE)
	}))
	t.Cleanup(tleSrv.Close)

	store := catalog.NewStore()
	ref := catalog.NewRefresher([]catalog.Source{{
		Name:   "stations",
		URL:    tleSrv.URL,
		Format: catalog.FormatTLE,
	}}, catalog.Config{Dir: t.TempDir()}, store, reg, logger)

	sched := schedule.New(obs, reg, nil, schedule.Config{Bodies: []string{"Sun", "Vega"}}, logger)

	deps := Deps{
		Observer:  obs,
		Registry:  reg,
		Scheduler: sched,
		Catalogs:  store,
		Refresher: ref,
	}
	return &fixture{
		deps:    deps,
		handler: NewServer(":0", logger, authCfg, false, deps).Handler(),
		tleURL:  tleSrv.URL,
	}
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var body map[string]any
	if w.Header().Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("%s %s: invalid JSON: %v", method, target, err)
		}
	}
	return w, body
}

func TestReadyz(t *testing.T) {
	f := newFixture(t, auth.Config{})

	w, _ := f.do(t, "GET", "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status before seeding = %d, want 503", w.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.deps.Scheduler.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(10 * time.Second)
	for !f.deps.Scheduler.Seeded() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never seeded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w, _ = f.do(t, "GET", "/readyz")
	if w.Code != http.StatusOK {
		t.Errorf("status after seeding = %d, want 200", w.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t, auth.Config{})
	q := f.deps.Scheduler.Queue()
	now := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	for _, e := range []event.Event{
		event.New("Sun", event.Set, now.Add(23*time.Hour), 271),
		event.New("Sun", event.Rise, now.Add(11*time.Hour), 89.5),
		event.New("Vega", event.Transit, now.Add(8*time.Hour), 78.8),
	} {
		if err := q.Push(e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBodies []string
	}{
		{"all in date order", "", http.StatusOK, []string{"Vega", "Sun", "Sun"}},
		{"limit", "?limit=1", http.StatusOK, []string{"Vega"}},
		{"by body", "?body=Sun", http.StatusOK, []string{"Sun", "Sun"}},
		{"by kind", "?kind=set", http.StatusOK, []string{"Sun"}},
		{"bad limit", "?limit=0", http.StatusBadRequest, nil},
		{"limit too large", "?limit=5000", http.StatusBadRequest, nil},
		{"bad kind", "?kind=sunrise", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, "GET", "/api/v1/events"+tt.query)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if body["error"] == nil {
					t.Error("expected error field in response")
				}
				return
			}
			events := body["events"].([]any)
			if len(events) != len(tt.wantBodies) {
				t.Fatalf("got %d events, want %d", len(events), len(tt.wantBodies))
			}
			for i, e := range events {
				if got := e.(map[string]any)["body"]; got != tt.wantBodies[i] {
					t.Errorf("event %d body = %v, want %s", i, got, tt.wantBodies[i])
				}
			}
		})
	}

	_, body := f.do(t, "GET", "/api/v1/events?kind=transit")
	ev := body["events"].([]any)[0].(map[string]any)
	if _, ok := ev["altitude"]; !ok {
		t.Error("transit should carry altitude")
	}
	if _, ok := ev["azimuth"]; ok {
		t.Error("transit should not carry azimuth")
	}
}

func TestBodiesEndpoints(t *testing.T) {
	f := newFixture(t, auth.Config{})

	w, body := f.do(t, "GET", "/api/v1/bodies")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// sun, moon, 7 planets, 2 stars
	if got := body["count"].(float64); got != 11 {
		t.Errorf("count = %v, want 11", got)
	}

	_, body = f.do(t, "GET", "/api/v1/bodies?group=stars")
	if got := body["count"].(float64); got != 2 {
		t.Errorf("stars count = %v, want 2", got)
	}

	w, body = f.do(t, "GET", "/api/v1/bodies/Vega")
	if w.Code != http.StatusOK {
		t.Fatalf("Vega status = %d", w.Code)
	}
	pos := body["position"].(map[string]any)
	if pos["type"] != "star" || pos["group"] != registry.GroupStars {
		t.Errorf("Vega position = %v", pos)
	}
	if _, ok := pos["magnitude"]; !ok {
		t.Error("star position missing magnitude")
	}

	w, _ = f.do(t, "GET", "/api/v1/bodies/Nibiru")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown body status = %d, want 404", w.Code)
	}
}

func TestSatellitePosition(t *testing.T) {
	f := newFixture(t, auth.Config{})
	sat, err := ephem.NewSatellite("ISS (ZARYA)", issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}

	pos, err := position(f.deps.Observer, sat, time.Date(2025, 2, 14, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if pos.NORADID != 25544 || pos.RangeKm == nil || pos.RAHours != nil {
		t.Errorf("satellite position = %+v", pos)
	}
	if *pos.RangeKm < 400 || *pos.RangeKm > 14000 {
		t.Errorf("range = %v km, not plausible for the ISS", *pos.RangeKm)
	}
}

func TestSkyEndpoint(t *testing.T) {
	f := newFixture(t, auth.Config{})
	at := url.QueryEscape("2026-03-20T17:40:00Z")

	w, body := f.do(t, "GET", "/api/v1/sky?at="+at)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["count"].(float64) != 11 {
		t.Errorf("count = %v, want 11", body["count"])
	}

	_, body = f.do(t, "GET", "/api/v1/sky?group=solar_system&up=true&at="+at)
	var sawSun bool
	for _, b := range body["bodies"].([]any) {
		p := b.(map[string]any)
		if p["up"] != true {
			t.Errorf("%v listed with up=true filter but is down", p["name"])
		}
		if p["name"] == "Sun" {
			sawSun = true
		}
	}
	if !sawSun {
		t.Error("the sun is up at local noon")
	}

	for _, q := range []string{"?at=yesterday", "?up=perhaps"} {
		w, _ := f.do(t, "GET", "/api/v1/sky"+q)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestCatalogRefresh(t *testing.T) {
	f := newFixture(t, auth.Config{Enabled: true, Token: "s3cret", PublicReads: true})

	_, body := f.do(t, "GET", "/api/v1/catalogs")
	if n := len(body["catalogs"].([]any)); n != 0 {
		t.Fatalf("catalogs before refresh = %d, want 0", n)
	}

	w, _ := f.do(t, "POST", "/api/v1/catalogs/stations/refresh")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh without token = %d, want 401", w.Code)
	}

	post := func(name string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/catalogs/"+name+"/refresh", nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		return w
	}

	w = post("stations")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d: %s", w.Code, w.Body.String())
	}
	var ds map[string]any
	json.NewDecoder(w.Body).Decode(&ds)
	if ds["bodies"].(float64) != 1 || ds["last_modified"] != "2025-02-14T04:00:00Z" {
		t.Errorf("refresh result = %v", ds)
	}

	if _, ok := f.deps.Registry.Get("ISS (ZARYA)"); !ok {
		t.Error("refreshed satellite not in registry")
	}
	_, body = f.do(t, "GET", "/api/v1/catalogs")
	if n := len(body["catalogs"].([]any)); n != 1 {
		t.Errorf("catalogs after refresh = %d, want 1", n)
	}

	if w := post("asteroids"); w.Code != http.StatusNotFound {
		t.Errorf("unknown catalog status = %d, want 404", w.Code)
	}
}
