package internal

import "errors"

var (
	ErrTimeout         = errors.New("timed out")
	ErrProcessorFailed = errors.New("processor failed")
	ErrPermanent       = errors.New("permanent dispatch failure")
	ErrQueueFull       = errors.New("queue full")
	ErrDuplicate       = errors.New("duplicate correlationId")
	ErrInvalidPayment  = errors.New("invalid payment")
	ErrUnknownStore    = errors.New("unknown store driver")
)
