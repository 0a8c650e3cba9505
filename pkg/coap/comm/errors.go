package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates no final response arrived before the deadline.
	ErrTimeout = errors.New("exchange timeout")
	// ErrCanceled indicates the exchange was canceled.
	// Evictions and connection failures are also reported as cancellations.
	ErrCanceled = errors.New("exchange canceled")
	// ErrEvicted indicates the exchange was evicted to admit a new request.
	ErrEvicted error = canceledError("exchange evicted")
	// ErrNoSlot indicates all exchange slots are busy, try again later.
	ErrNoSlot = errors.New("no exchange slot available")
	// ErrMessageTooLarge indicates the encoded request exceeds the buffer size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrNotConnected indicates the conn has no usable transport.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected indicates a transport is already attached.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrFrameTooLarge indicates an inbound frame exceeds the buffer capacity.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrWouldBlock is the normal state of a non-blocking read without data.
	ErrWouldBlock = errors.New("would block")
	// ErrRegistryFull indicates the registry reached its capacity.
	ErrRegistryFull = errors.New("registry full")
	// ErrAlreadyRegistered indicates the conn is already in a registry.
	ErrAlreadyRegistered = errors.New("already registered")
)

type canceledError string

func (e canceledError) Error() string {
	return string(e)
}

func (e canceledError) Is(target error) bool {
	return target == ErrCanceled
}

// ConnError is delivered to every ongoing exchange when the connection fails.
type ConnError struct {
	Cause error
}

// Error implements error.
func (e *ConnError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Cause)
}

// Unwrap returns the cause.
func (e *ConnError) Unwrap() error {
	return e.Cause
}

// Is reports a ConnError as a cancellation.
func (e *ConnError) Is(target error) bool {
	return target == ErrCanceled
}
