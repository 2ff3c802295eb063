package geo

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

const (
	// EarthRadiusM is the mean earth radius in meters
	EarthRadiusM = 6371000.0
	// MetersPerNM is the number of meters in one nautical mile
	MetersPerNM = 1852.0
)

// Haversine returns the great-circle distance in meters between two points
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// MetersToNM converts meters to nautical miles
func MetersToNM(meters float64) float64 {
	return meters / MetersPerNM
}

// InitialBearing returns the great-circle initial bearing in degrees (0..360)
// for travel from the first point to the second
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	return NormalizeDegrees(math.Atan2(y, x) * 180 / math.Pi)
}

// Project returns the position reached after traveling from (lat, lon) on the
// given heading (degrees) at the given ground speed (knots) for dt.
// Flat-earth dead reckoning: 1 degree latitude is 60 NM, longitude scaled by
// cos(latitude). Accurate enough at the few-second horizons used here.
func Project(lat, lon, headingDeg, speedKts float64, dt time.Duration) (float64, float64) {
	if dt <= 0 || speedKts <= 0 {
		return lat, lon
	}

	// Compass heading to math angle (0 degrees = East, counterclockwise)
	rad := (90 - headingDeg) * math.Pi / 180
	distanceNM := speedKts * dt.Seconds() / 3600

	newLat := lat + distanceNM*math.Sin(rad)/60
	newLon := lon + distanceNM*math.Cos(rad)/(60*math.Cos(lat*math.Pi/180))

	return newLat, newLon
}

// NormalizeDegrees maps an angle to [0, 360)
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// MagneticVariation calculates the magnetic declination for a position and
// time. Returns declination in degrees (+East, -West), 0 if the model fails.
func MagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	altM := altFt * 0.3048

	loc := egm96.NewLocationGeodetic(lat, lon, altM)
	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0.0
	}

	return mag.D()
}

// TrueToMagnetic converts a true heading to a magnetic heading at the given
// position and time
func TrueToMagnetic(trueHeading, lat, lon, altFt float64, date time.Time) float64 {
	return NormalizeDegrees(trueHeading - MagneticVariation(lat, lon, altFt, date))
}
