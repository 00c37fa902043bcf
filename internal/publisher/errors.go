package publisher

import "codeberg.org/mutker/sensorsim/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrConnectFailed  = errors.ErrorCode("publisher_connect_failed")
	ErrEncodeFailed   = errors.ErrorCode("publisher_encode_failed")
	ErrPublishFailed  = errors.ErrorCode("publisher_publish_failed")
	ErrQueueFull      = errors.ErrorCode("publisher_queue_full")
	ErrClosed         = errors.ErrorCode("publisher_closed")
	ErrPublisherClose = errors.ErrShutdownFailed
)
