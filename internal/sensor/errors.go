package sensor

import "codeberg.org/mutker/sensorsim/internal/errors"

const (
	// Construction Errors
	ErrInvalidPeriod   = errors.ErrInvalidPeriod
	ErrInvalidCapacity = errors.ErrInvalidCapacity
	ErrInvalidUnit     = errors.ErrInvalidUnit
	ErrNilSource       = errors.ErrNilSource

	// Sampling Errors
	ErrSourceFailed   = errors.ErrSourceFailed
	ErrListenerFailed = errors.ErrListenerFailed
	ErrListenerPanic  = errors.ErrListenerPanic
)
