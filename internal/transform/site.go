package transform

import "math"

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// Site is a ground observer with its ECEF position precomputed, so repeated
// look-angle calculations during a pass search only do the rotation.
type Site struct {
	LatRad, LonRad, AltM float64
	X, Y, Z              float64 // ECEF meters
}

// LookAngles from a site to a target.
type LookAngles struct {
	AzimuthDeg   float64 // from north, clockwise
	ElevationDeg float64
	RangeKm      float64
}

// GeodeticPoint is a sub-satellite point.
type GeodeticPoint struct {
	LatDeg, LonDeg, AltM float64
}

// NewSite builds a Site from geodetic degrees (east longitude) and meters above the ellipsoid.
func NewSite(latDeg, lonDeg, altM float64) Site {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)

	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Site{
		LatRad: lat,
		LonRad: lon,
		AltM:   altM,
		X:      (n + altM) * cosLat * math.Cos(lon),
		Y:      (n + altM) * cosLat * math.Sin(lon),
		Z:      (n*(1-wgs84E2) + altM) * sinLat,
	}
}

// LookAt computes azimuth, elevation and range to an ECEF position using the
// SEZ topocentric rotation (Vallado 4.4).
func (s Site) LookAt(p PositionECEF) LookAngles {
	rx, ry, rz := p.X-s.X, p.Y-s.Y, p.Z-s.Z

	sinLat, cosLat := math.Sin(s.LatRad), math.Cos(s.LatRad)
	sinLon, cosLon := math.Sin(s.LonRad), math.Cos(s.LonRad)

	south := sinLat*cosLon*rx + sinLat*sinLon*ry - cosLat*rz
	east := -sinLon*rx + cosLon*ry
	zenith := cosLat*cosLon*rx + cosLat*sinLon*ry + sinLat*rz

	rng := math.Sqrt(south*south + east*east + zenith*zenith)

	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * 180 / math.Pi,
		ElevationDeg: math.Asin(zenith/rng) * 180 / math.Pi,
		RangeKm:      rng / 1000,
	}
}

// Geodetic converts an ECEF position to latitude, longitude and height
// (Bowring iteration, converges in a few steps for orbital altitudes).
func Geodetic(p PositionECEF) GeodeticPoint {
	lon := math.Atan2(p.Y, p.X)
	r := math.Sqrt(p.X*p.X + p.Y*p.Y)

	lat := math.Atan2(p.Z, r*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+wgs84E2*n*sinLat, r)
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = r/cosLat - n
	} else {
		alt = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: lat * 180 / math.Pi,
		LonDeg: lon * 180 / math.Pi,
		AltM:   alt,
	}
}
