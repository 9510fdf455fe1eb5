package route

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Seed is the on-disk format for bundled route data
type Seed struct {
	Routes []SeedRoute `yaml:"routes" validate:"dive"`
}

// SeedRoute is a route together with its attractions
type SeedRoute struct {
	Route       `yaml:",inline"`
	Attractions []Attraction `yaml:"attractions" validate:"dive"`
}

var seedValidator = validator.New()

// ParseSeed decodes and validates seed YAML
func ParseSeed(data []byte) (*Seed, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse route seed: %w", err)
	}
	if err := seedValidator.Struct(&seed); err != nil {
		return nil, fmt.Errorf("invalid route seed: %w", err)
	}

	seen := make(map[string]bool, len(seed.Routes))
	for _, r := range seed.Routes {
		if seen[r.ID] {
			return nil, fmt.Errorf("invalid route seed: duplicate route id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return &seed, nil
}

// LoadSeedFile reads and parses a seed file
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route seed: %w", err)
	}
	return ParseSeed(data)
}

// Apply writes every seeded route into each repository
func (s *Seed) Apply(ctx context.Context, repos ...Repository) error {
	for _, repo := range repos {
		for _, r := range s.Routes {
			if err := repo.SaveRoute(ctx, r.Route, r.Attractions); err != nil {
				return fmt.Errorf("failed to save route %s: %w", r.ID, err)
			}
		}
	}
	return nil
}
