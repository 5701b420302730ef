package lifecycle

import (
	"fmt"

	"github.com/rs/zerolog"
)

// cleanupStep is one named teardown action.
type cleanupStep struct {
	name string
	fn   func() error
}

// runCleanup runs every step in order. A failing or panicking step is
// logged and does not stop the ones after it.
func runCleanup(logger zerolog.Logger, steps []cleanupStep) []error {
	var errs []error
	for _, s := range steps {
		if err := runCleanupStep(s); err != nil {
			logger.Error().Err(err).Str("step", s.name).Msg("Teardown step failed")
			errs = append(errs, err)
			continue
		}
		logger.Debug().Str("step", s.name).Msg("Teardown step done")
	}
	return errs
}

func runCleanupStep(s cleanupStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("teardown step %s panicked: %v", s.name, r)
		}
	}()
	return s.fn()
}
