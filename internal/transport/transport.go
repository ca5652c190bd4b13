// Package transport wraps the PC/SC request/response primitive behind small
// interfaces so the tag protocol logic can be exercised against mocks.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoReader is returned when no smart-card reader is attached.
// This condition is fatal at startup.
var ErrNoReader = errors.New("no smart-card reader available")

// StatusError reports an APDU that completed with a non-success status word.
type StatusError struct {
	SW1, SW2 byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command failed with status %02X %02X", e.SW1, e.SW2)
}

// StateFlag mirrors the PC/SC reader state bits used for tag presence polling.
type StateFlag uint32

const (
	StateUnaware StateFlag = 0x0000
	StateChanged StateFlag = 0x0002
	StateEmpty   StateFlag = 0x0010
	StatePresent StateFlag = 0x0020
)

// ReaderState carries the current and event state of one reader for
// GetStatusChange polling.
type ReaderState struct {
	Reader       string
	CurrentState StateFlag
	EventState   StateFlag
}

// Context represents an established PC/SC context.
type Context interface {
	ListReaders() ([]string, error)
	Connect(reader string) (Card, error)
	GetStatusChange(states []ReaderState, timeout time.Duration) error
	Release() error
}

// Card represents a connected card able to exchange raw command frames.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	ATR() ([]byte, error)
	Disconnect() error
}

// ContextFactory creates Context instances.
// This allows for dependency injection and mocking in tests.
type ContextFactory interface {
	Establish() (Context, error)
}

// Exchange transmits an opaque command frame and splits the trailing status
// words from the payload. It returns the payload on SW=9000 and a StatusError
// otherwise. No retries happen at this layer; retrying is the caller's call.
func Exchange(card Card, cmd []byte) ([]byte, error) {
	rsp, err := card.Transmit(cmd)
	if err != nil {
		return nil, fmt.Errorf("transmit failed: %w", err)
	}
	if len(rsp) < 2 {
		return nil, fmt.Errorf("short response: %d bytes", len(rsp))
	}
	sw1, sw2 := rsp[len(rsp)-2], rsp[len(rsp)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, &StatusError{SW1: sw1, SW2: sw2}
	}
	return rsp[:len(rsp)-2], nil
}
