package geospatial

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// GlobeRadius is the sphere radius used when projecting project markers
const GlobeRadius = 2.1

var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
)

// Vector3 is a cartesian position on the marker globe
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ValidateCoordinates checks decimal degree bounds
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

// Point converts decimal degrees into an orb point (lng, lat order)
func Point(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

// DistanceKm returns the great-circle distance between two coordinates
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	return geo.DistanceHaversine(Point(lat1, lng1), Point(lat2, lng2)) / 1000
}

// WithinRadius reports whether a coordinate lies within radiusKm of a center
func WithinRadius(centerLat, centerLng, lat, lng, radiusKm float64) bool {
	return DistanceKm(centerLat, centerLng, lat, lng) <= radiusKm
}

// Bound returns the bounding box around a center that covers radiusKm
func Bound(lat, lng, radiusKm float64) orb.Bound {
	return geo.NewBoundAroundPoint(Point(lat, lng), radiusKm*1000)
}

// ToSphere places a coordinate on a sphere of the given radius with Y up
func ToSphere(lat, lng, radius float64) Vector3 {
	phi := lat * math.Pi / 180
	theta := lng * math.Pi / 180
	return Vector3{
		X: radius * math.Cos(phi) * math.Cos(theta),
		Y: radius * math.Sin(phi),
		Z: radius * math.Cos(phi) * math.Sin(theta),
	}
}

// ConvertToHectares converts square meters to hectares
func ConvertToHectares(sqMeters float64) float64 {
	return sqMeters / 10000
}
