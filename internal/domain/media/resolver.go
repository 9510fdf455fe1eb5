// Package media turns the audio and image references stored with
// attractions into URLs that players and clients can fetch.
package media

import (
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	// AssetURLPrefix marks a reference to a file bundled with the route data
	AssetURLPrefix = "file:///android_asset/"

	audioDir  = "audio"
	imagesDir = "images"
)

// Config describes where route media is stored
type Config struct {
	BaseURL    string
	ImagesPath string
	AudioPath  string
	CloudFirst bool
	AssetsDir  string
}

// Resolver resolves media references for a storage layout
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver
func NewResolver(cfg Config) *Resolver {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ImagesPath = strings.Trim(cfg.ImagesPath, "/")
	cfg.AudioPath = strings.Trim(cfg.AudioPath, "/")
	return &Resolver{cfg: cfg}
}

// CloudAudioURL returns base/audio_path/routeID/file, or "" if either part is blank
func (r *Resolver) CloudAudioURL(routeID, file string) string {
	return r.cloudURL(r.cfg.AudioPath, routeID, file)
}

// CloudImageURL returns base/images_path/routeID/file, or "" if either part is blank
func (r *Resolver) CloudImageURL(routeID, file string) string {
	return r.cloudURL(r.cfg.ImagesPath, routeID, file)
}

func (r *Resolver) cloudURL(prefix, routeID, file string) string {
	if strings.TrimSpace(routeID) == "" || strings.TrimSpace(file) == "" {
		return ""
	}
	return r.cfg.BaseURL + "/" + prefix + "/" + routeID + "/" + file
}

// LocalAssetURL returns the bundled-asset URL for a path
func LocalAssetURL(path string, audio bool) string {
	dir := imagesDir
	if audio {
		dir = audioDir
	}
	return AssetURLPrefix + dir + "/" + path
}

// IsCloudURL reports whether ref is an http(s) URL
func IsCloudURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// IsLocalURL reports whether ref is a file URL
func IsLocalURL(ref string) bool {
	return strings.HasPrefix(ref, "file://")
}

// AudioURL picks the narration URL for an attraction. An explicit cloud URL
// wins, then a cloud URL derived from the local path (when cloud-first),
// then the bundled asset. Returns "" when nothing is known.
func (r *Resolver) AudioURL(cloudURL, localPath, routeID string) string {
	if strings.TrimSpace(cloudURL) != "" {
		return cloudURL
	}
	if strings.TrimSpace(localPath) == "" {
		return ""
	}
	if r.cfg.CloudFirst {
		if u := r.CloudAudioURL(routeID, localPath); u != "" {
			return u
		}
	}
	return LocalAssetURL(localPath, true)
}

// ImageURLs lists image URLs with explicit cloud URLs first, followed by
// URLs derived from local paths. Duplicates are dropped, first occurrence kept.
func (r *Resolver) ImageURLs(cloudURLs, localPaths []string, routeID string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(cloudURLs)+len(localPaths))
	add := func(u string) {
		if u == "" || seen.Contains(u) {
			return
		}
		seen.Add(u)
		out = append(out, u)
	}

	for _, u := range cloudURLs {
		add(strings.TrimSpace(u))
	}
	for _, p := range localPaths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if r.cfg.CloudFirst {
			if u := r.CloudImageURL(routeID, p); u != "" {
				add(u)
				continue
			}
		}
		add(LocalAssetURL(p, false))
	}
	return out
}

// Playable maps a track reference onto something the audio engine can open.
// Bundled assets and bare file names resolve under the assets dir; anything
// else is passed through unchanged.
func (r *Resolver) Playable(ref string) string {
	switch {
	case strings.HasPrefix(ref, AssetURLPrefix):
		return filepath.Join(r.cfg.AssetsDir, filepath.FromSlash(strings.TrimPrefix(ref, AssetURLPrefix)))
	case isBareFileName(ref):
		return filepath.Join(r.cfg.AssetsDir, audioDir, ref)
	default:
		return ref
	}
}

func isBareFileName(ref string) bool {
	return ref != "" && !strings.Contains(ref, "/") && !strings.Contains(ref, ":") && filepath.Ext(ref) != ""
}
