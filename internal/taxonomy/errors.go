package taxonomy

import (
	"errors"
	"fmt"
)

// ErrUnparsableResponse is wrapped by every response parse failure
// after the repair ladder has been exhausted.
var ErrUnparsableResponse = errors.New("unparsable response")

// ConfigurationError reports an invalid lexicon or engine setting.
// It is raised at load time only, never while processing a subject.
type ConfigurationError struct {
	// Field names the offending setting (e.g., "indicators[3].id").
	Field string

	// Reason describes what is wrong with it.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
