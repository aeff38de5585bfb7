// Package transform converts SGP4 output into observer-relative geometry.
//
// SGP4 positions are in TEME (True Equator Mean Equinox). Rotating by GMST gives
// PEF, which is used as ECEF here; polar motion and the equation of the equinoxes
// are ignored (~50 m), far below what pass timing to the second needs.
package transform

import (
	"math"
	"time"
)

// PositionTEME is a satellite state in the TEME frame.
type PositionTEME struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// PositionECEF is a satellite state in the earth-fixed frame.
type PositionECEF struct {
	X, Y, Z    float64 // meters
	VX, VY, VZ float64 // m/s
}

// TEMEToECEF rotates a TEME state into ECEF at time t.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST rotates with a precomputed GMST angle (radians).
//
//	r_ECEF = R3(θ) r_TEME
//	v_ECEF = R3(θ) v_TEME - ω × r_ECEF
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)

	x := teme.X*cosG + teme.Y*sinG
	y := -teme.X*sinG + teme.Y*cosG
	z := teme.Z

	vx := teme.VX*cosG + teme.VY*sinG + OmegaEarth*y
	vy := -teme.VX*sinG + teme.VY*cosG - OmegaEarth*x
	vz := teme.VZ

	return PositionECEF{
		X: x * 1000, Y: y * 1000, Z: z * 1000,
		VX: vx * 1000, VY: vy * 1000, VZ: vz * 1000,
	}
}

// ValidateECEF reports whether pos is a plausible earth-orbit position:
// finite and between 6200 km and 50000 km from the geocenter.
func ValidateECEF(pos PositionECEF) bool {
	for _, v := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	const (
		minRadius = 6200e3
		maxRadius = 50000e3
	)
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	return mag >= minRadius && mag <= maxRadius
}
