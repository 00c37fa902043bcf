package telemetry

import "codeberg.org/mutker/sensorsim/internal/errors"

const (
	ErrRegisterFailed = errors.ErrorCode("telemetry_register_failed")
	ErrServeFailed    = errors.ErrorCode("telemetry_serve_failed")
	ErrServerShutdown = errors.ErrShutdownFailed
)
