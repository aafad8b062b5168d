package viz

import (
	"errors"
	"fmt"

	"github.com/MrWong99/voxbars/pkg/audio"
)

var (
	// ErrUnsupportedFormat is returned by a [BufferSizer] that cannot size a
	// buffer for the requested format.
	ErrUnsupportedFormat = errors.New("viz: unsupported audio format")

	// ErrDetached is returned when attaching a [SampleSink] that has already
	// been detached. Sinks are single-use.
	ErrDetached = errors.New("viz: sink already detached")
)

// ConfigurationError reports that a [SpectrumAnalyzer] could not be
// configured for a format. It is fatal for the current track attachment.
type ConfigurationError struct {
	Format audio.Format
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("viz: configure analyzer for %s: %v", e.Format, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
