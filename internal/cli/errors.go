package cli

import (
	"errors"

	"github.com/vesselhq/vessel-agent/internal/api"
	"github.com/vesselhq/vessel-agent/internal/constants"
)

// configError marks a failure that should exit with the configuration code.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

// exitCodeFor maps an error to the documented process exit codes.
func exitCodeFor(err error) int {
	var ce *configError
	switch {
	case err == nil:
		return constants.ExitOK
	case errors.As(err, &ce):
		return constants.ExitConfig
	case errors.Is(err, api.ErrEnrollmentRequired):
		return constants.ExitEnrollment
	case errors.Is(err, api.ErrNoProviders):
		return constants.ExitNoProviders
	}
	return constants.ExitError
}
