package catalog

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/unit"
	"github.com/star/skywatch/internal/ephem"
)

func TestParseTLE(t *testing.T) {
	input := "0 " + issTLE + "GARBAGE LINE\n" + starlinkTLE + "TRAILING NAME\n1 99999U\n"

	entries, err := ParseTLE(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatal(err)
	}

	want := []TLEEntry{
		{
			NORADID: 25544,
			Name:    "ISS (ZARYA)",
			Epoch:   time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC),
			Line1:   "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005",
			Line2:   "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09",
		},
		{
			NORADID: 44713,
			Name:    "STARLINK-1007",
			Epoch:   time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC),
			Line1:   "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995",
			Line2:   "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05",
		},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("ParseTLE mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTLEEpoch(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"24001.00000000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"99365.50000000", time.Date(1999, 12, 31, 12, 0, 0, 0, time.UTC), false},
		{"57001.0", time.Date(1957, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"2x001.0", time.Time{}, true},
		{"24", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTLEEpoch(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

const xephemSample = `# From Soft03Cmt.txt
12P/Pons-Brooks,e,74.1912,255.8561,198.9880,17.1973,0.01393,0.954638,359.9964,04/21.1352/2024,2000,g  5.0,4.0
C/2024 G3 (ATLAS),p,01/13.4278/2025,116.8529,108.1286,0.093535,220.3442,2000,g  8.5,4.0
C/2023 A3 (Tsuchinshan-ATLAS),h,09/27.7367/2024,139.1115,21.5615,308.4893,1.000126,0.39137,2000,g  4.6,4.0
(1) Ceres|Cer,e,10.5868,80.2550,73.4248,2.76661,0.21424,0.079576,60.0786,09/13.0/2026,2000,H 3.34,0.12
Broken,e,1,2,3
BadDate,p,13/45.0/2025,1,2,0.5,3,2000
C/1980 E1 (Bowell),h,03/12.0/1982,1.6616,114.5580,135.0977,1.057,3.3639
BadEquinox,p,01/13.4278/2025,116.8529,108.1286,0.093535,220.3442,5000,g  8.5,4.0
`

func TestParseXEphem(t *testing.T) {
	entries, err := ParseXEphem(strings.NewReader(xephemSample), testLogger)
	if err != nil {
		t.Fatal(err)
	}

	want := []XEphemEntry{
		{
			Name: "12P/Pons-Brooks",
			Orbit: ephem.Orbit{
				Kind:        ephem.EllipticOrbit,
				Inc:         unit.AngleFromDeg(74.1912),
				Node:        unit.AngleFromDeg(255.8561),
				ArgPeri:     unit.AngleFromDeg(198.9880),
				SemiMajor:   17.1973,
				DailyMotion: unit.AngleFromDeg(0.01393),
				Ecc:         0.954638,
				MeanAnomaly: unit.AngleFromDeg(359.9964),
				Epoch:       julian.CalendarGregorianToJD(2024, 4, 21.1352),
				Model:       ephem.MagnitudeComet,
				Mag1:        5.0,
				Mag2:        4.0,
			},
		},
		{
			Name: "C/2024 G3 (ATLAS)",
			Orbit: ephem.Orbit{
				Kind:     ephem.ParabolicOrbit,
				PeriTime: julian.CalendarGregorianToJD(2025, 1, 13.4278),
				Inc:      unit.AngleFromDeg(116.8529),
				ArgPeri:  unit.AngleFromDeg(108.1286),
				PeriDist: 0.093535,
				Node:     unit.AngleFromDeg(220.3442),
				Model:    ephem.MagnitudeComet,
				Mag1:     8.5,
				Mag2:     4.0,
			},
		},
		{
			Name: "C/2023 A3 (Tsuchinshan-ATLAS)",
			Orbit: ephem.Orbit{
				Kind:     ephem.HyperbolicOrbit,
				PeriTime: julian.CalendarGregorianToJD(2024, 9, 27.7367),
				Inc:      unit.AngleFromDeg(139.1115),
				Node:     unit.AngleFromDeg(21.5615),
				ArgPeri:  unit.AngleFromDeg(308.4893),
				Ecc:      1.000126,
				PeriDist: 0.39137,
				Model:    ephem.MagnitudeComet,
				Mag1:     4.6,
				Mag2:     4.0,
			},
		},
		{
			Name: "(1) Ceres",
			Orbit: ephem.Orbit{
				Kind:        ephem.EllipticOrbit,
				Inc:         unit.AngleFromDeg(10.5868),
				Node:        unit.AngleFromDeg(80.2550),
				ArgPeri:     unit.AngleFromDeg(73.4248),
				SemiMajor:   2.76661,
				DailyMotion: unit.AngleFromDeg(0.21424),
				Ecc:         0.079576,
				MeanAnomaly: unit.AngleFromDeg(60.0786),
				Epoch:       julian.CalendarGregorianToJD(2026, 9, 13.0),
				Model:       ephem.MagnitudeHG,
				Mag1:        3.34,
				Mag2:        0.12,
			},
		},
		{
			Name: "C/1980 E1 (Bowell)",
			Orbit: ephem.Orbit{
				Kind:     ephem.HyperbolicOrbit,
				PeriTime: julian.CalendarGregorianToJD(1982, 3, 12.0),
				Inc:      unit.AngleFromDeg(1.6616),
				Node:     unit.AngleFromDeg(114.5580),
				ArgPeri:  unit.AngleFromDeg(135.0977),
				Ecc:      1.057,
				PeriDist: 3.3639,
			},
		},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("ParseXEphem mismatch (-want +got):\n%s", diff)
	}
}

func TestParseXEphemEquinox(t *testing.T) {
	// Meeus example 24.b: Encke's elements reduced from B1950 to J2000.
	encke := "2P/Encke B1950,e,11.93911,334.04096,186.24444,2.2178,0,0.8502,0,10/28.54/1977,1950"
	entries, err := ParseXEphem(strings.NewReader(encke), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	o := entries[0].Orbit
	for _, c := range []struct {
		name      string
		got, want float64
	}{
		{"i", o.Inc.Deg(), 11.94524},
		{"Ω", o.Node.Deg(), 334.75006},
		{"ω", o.ArgPeri.Deg(), 186.23352},
	} {
		if math.Abs(c.got-c.want) > 1e-5 {
			t.Errorf("%s = %.5f, want %.5f", c.name, c.got, c.want)
		}
	}

	// Other equinoxes go through the general ecliptic precession: a century
	// moves the node by about 1.4°.
	entries, err = ParseXEphem(strings.NewReader(strings.Replace(encke, ",1950", ",1900", 1)), testLogger)
	if err != nil || len(entries) != 1 {
		t.Fatalf("equinox 1900: %v, %d entries", err, len(entries))
	}
	if shift := entries[0].Orbit.Node.Deg() - 334.04096; shift < 1.3 || shift > 1.5 {
		t.Errorf("node moved %.4f° from 1900 to 2000", shift)
	}
}

func TestBuild(t *testing.T) {
	ds, err := Build(VisualSource, Payload{Body: []byte(issTLE + starlinkTLE + issTLE)}, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Targets) != 2 {
		t.Fatalf("got %d targets, want 2 (duplicate ISS dropped)", len(ds.Targets))
	}
	if ds.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", ds.Skipped)
	}
	if _, ok := ds.Targets[0].(*ephem.Satellite); !ok {
		t.Errorf("target is %T, want *ephem.Satellite", ds.Targets[0])
	}

	comets, err := Build(CometsSource, Payload{Body: []byte(xephemSample)}, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if len(comets.Targets) != 5 {
		t.Errorf("got %d minor bodies, want 5", len(comets.Targets))
	}

	if _, err := Build(CometsSource, Payload{Body: []byte("<html>oops</html>")}, testLogger); err == nil {
		t.Error("expected error for a catalog with no usable records")
	}
}
