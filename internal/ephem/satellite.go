package ephem

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/skywatch/internal/transform"
)

// Satellite is an earth satellite propagated with SGP4 from a two-line element set.
type Satellite struct {
	name    string
	noradID int
	line1   string
	line2   string
	sat     satellite.Satellite
}

// NewSatellite parses the element set and initializes SGP4.
//
// The lines are format-checked first: go-satellite calls log.Fatal on input it
// cannot parse.
func NewSatellite(name, line1, line2 string) (*Satellite, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for %s: %w", name, err)
	}
	id, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return nil, fmt.Errorf("invalid NORAD id for %s: %w", name, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %s: code=%d %s", name, sat.Error, sat.ErrorStr)
	}
	return &Satellite{name: name, noradID: id, line1: line1, line2: line2, sat: sat}, nil
}

func validateTLELines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

func (s *Satellite) Name() string { return s.name }

// NORADID is the catalog number from line 1.
func (s *Satellite) NORADID() int { return s.noradID }

// Lines returns the element set as loaded.
func (s *Satellite) Lines() (string, string) { return s.line1, s.line2 }

// Propagate returns the TEME state at t.
//
// go-satellite takes the Satellite by value so its error codes never reach
// us; failures show up as NaN or an implausible radius instead.
func (s *Satellite) Propagate(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(s.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for %s: output is NaN/Inf", s.name)
	}
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for %s: unreasonable position magnitude %.1f km", s.name, mag)
	}

	return transform.PositionTEME{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		VX: vel.X, VY: vel.Y, VZ: vel.Z,
	}, nil
}

// Look returns the satellite's look angles from o at t.
func (o *Observer) Look(s *Satellite, t time.Time) (transform.LookAngles, transform.PositionECEF, error) {
	teme, err := s.Propagate(t)
	if err != nil {
		return transform.LookAngles{}, transform.PositionECEF{}, err
	}
	ecef := transform.TEMEToECEF(teme, t)
	if !transform.ValidateECEF(ecef) {
		return transform.LookAngles{}, transform.PositionECEF{}, fmt.Errorf("%s: implausible earth-fixed position at %s", s.name, t.UTC().Format(time.RFC3339))
	}
	return o.site.LookAt(ecef), ecef, nil
}
