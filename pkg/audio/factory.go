package audio

import (
	"fmt"

	"github.com/danghamo/tourguide/pkg/logger"
)

// Engine names accepted by New
const (
	EngineMpg123 = "mpg123"
	EngineNull   = "null"
)

// Factory builds one engine per guide session
type Factory func() (Engine, error)

// NewFactory returns a factory for the named engine
func NewFactory(name, playerPath string, log *logger.Logger) (Factory, error) {
	switch name {
	case EngineMpg123, "":
		return func() (Engine, error) { return NewMpg123Engine(playerPath, log), nil }, nil
	case EngineNull:
		return func() (Engine, error) { return NewNullEngine(), nil }, nil
	default:
		return nil, fmt.Errorf("unsupported audio engine: %s", name)
	}
}
