// Package route holds tour routes, their attractions and the stores they live in.
package route

import (
	"sort"

	"github.com/danghamo/tourguide/internal/domain/shared"
)

// Attraction is a point of interest along a route
type Attraction struct {
	ID              string            `json:"id" yaml:"id" validate:"required"`
	RouteID         string            `json:"route_id" yaml:"route_id"`
	Name            string            `json:"name" yaml:"name" validate:"required"`
	Description     string            `json:"description" yaml:"description"`
	Location        shared.Coordinate `json:"location" yaml:"location"`
	ImageURLs       []string          `json:"image_urls,omitempty" yaml:"image_urls"`
	AudioURL        string            `json:"audio_url,omitempty" yaml:"audio_url"`
	LocalImagePaths []string          `json:"local_image_paths,omitempty" yaml:"local_image_paths"`
	LocalAudioPath  string            `json:"local_audio_path,omitempty" yaml:"local_audio_path"`
	Order           int               `json:"order" yaml:"order"`
}

// HasAudio reports whether the attraction has any narration reference
func (a Attraction) HasAudio() bool {
	return a.AudioURL != "" || a.LocalAudioPath != ""
}

// Route is a tour route such as a sightseeing bus line
type Route struct {
	ID                     string            `json:"id" yaml:"id" validate:"required"`
	Number                 string            `json:"number" yaml:"number"`
	Name                   string            `json:"name" yaml:"name" validate:"required"`
	Description            string            `json:"description" yaml:"description"`
	Polyline               string            `json:"polyline,omitempty" yaml:"polyline"`
	History                string            `json:"history,omitempty" yaml:"history"`
	AttractionsDescription string            `json:"attractions_description,omitempty" yaml:"attractions_description"`
	Stops                  []string          `json:"stops,omitempty" yaml:"stops"`
	Duration               string            `json:"duration,omitempty" yaml:"duration"`
	Interval               string            `json:"interval,omitempty" yaml:"interval"`
	StartPoint             shared.Coordinate `json:"start_point" yaml:"start_point"`
}

// SortByOrder orders attractions by display order, keeping input order on ties
func SortByOrder(attractions []Attraction) {
	sort.SliceStable(attractions, func(i, j int) bool {
		return attractions[i].Order < attractions[j].Order
	})
}

// Find returns the attraction with the given id
func Find(attractions []Attraction, id string) (Attraction, bool) {
	for _, a := range attractions {
		if a.ID == id {
			return a, true
		}
	}
	return Attraction{}, false
}
