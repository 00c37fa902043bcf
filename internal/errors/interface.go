package errors

// ErrorCode represents a unique identifier for each error type. Codes are
// stable strings; they label the sensorsim_errors_total metric and the
// error_code log field.
type ErrorCode string

// Error represents a domain-specific error with context. Use HasCode to test
// for a code anywhere in a wrapped chain and CodeOf to read the outermost one.
type Error interface {
	error
	Code() ErrorCode
	// WithMessage and WithData return copies; the receiver is not modified
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory defines methods for creating domain errors
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
