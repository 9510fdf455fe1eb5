package route

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders attractions as GeoJSON points for map clients
func FeatureCollection(attractions []Attraction) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, a := range attractions {
		f := geojson.NewFeature(a.Location.Point())
		f.ID = a.ID
		f.Properties["name"] = a.Name
		f.Properties["description"] = a.Description
		f.Properties["order"] = a.Order
		f.Properties["has_audio"] = a.HasAudio()
		fc.Append(f)
	}
	return fc
}
