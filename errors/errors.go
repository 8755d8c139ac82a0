package errors

import "fmt"

var (
	ErrEmptyExport        = fmt.Errorf("no messages to export")
	ErrUnsupportedFormat  = fmt.Errorf("unsupported export format")
	ErrChannelUnavailable = fmt.Errorf("no active channel subscription")
	ErrAuthFailure        = fmt.Errorf("authentication failed")
	ErrNotSubscribed      = fmt.Errorf("channel is not subscribed")
	ErrConnectionClosed   = fmt.Errorf("realtime connection closed")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrUnknownCommand     = fmt.Errorf("unknown command")
)
