package catalog

import (
	"math"

	"github.com/kilianp07/smartshift/core/model"
)

const earthRadiusKm = 6371

// Distance is the great-circle distance in km between a and b.
func Distance(a, b model.Coordinates) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// MunichCenter is the default map origin.
var MunichCenter = model.Coordinates{Lat: 48.137154, Lng: 11.576124}
