package tag

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openstickers/nfc-flasher/internal/logging"
	"github.com/openstickers/nfc-flasher/internal/transport"
)

// ErrTagLost reports a tag that stopped answering mid-session.
// Recoverable: the session is dropped and polling resumes.
var ErrTagLost = errors.New("tag communication lost")

// State is the monitor's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateTagPresent
	StateActive
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateTagPresent:
		return "tag-present"
	case StateActive:
		return "active"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// EventKind tags a monitor event.
type EventKind int

const (
	EventInserted EventKind = iota
	EventRemoved
	EventError
)

// Event is one tag lifecycle notification. Inserted events carry an open
// Session; the consumer owns it and must Close it.
type Event struct {
	Kind    EventKind
	Session *Session
	Err     error
}

// Session owns the card handle and identifier for one tag presentation.
type Session struct {
	UID    string // uppercase hex, no separators
	Family string // ATR-derived card family, for logging
	card   transport.Card
	closed bool
}

// Card exposes the open transport handle.
func (s *Session) Card() transport.Card {
	return s.card
}

// Close releases the card handle. Safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.card.Disconnect(); err != nil {
		logging.Debug(logging.CatTag, "Disconnect failed", map[string]any{
			"uid":   s.UID,
			"error": err.Error(),
		})
	}
}

// Monitor watches one reader for tag insertion and removal.
type Monitor struct {
	ctx      transport.Context
	reader   string
	interval time.Duration
	state    State
}

// NewMonitor creates a monitor for the named reader.
func NewMonitor(tctx transport.Context, reader string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Monitor{ctx: tctx, reader: reader, interval: interval, state: StateIdle}
}

// setState records a lifecycle transition. Only called from the run
// goroutine.
func (m *Monitor) setState(s State) {
	if s == m.state {
		return
	}
	logging.Debug(logging.CatReader, "Monitor state changed", map[string]any{
		"from": m.state.String(),
		"to":   s.String(),
	})
	m.state = s
}

// Events starts the poll loop and returns the event channel. The channel is
// closed when ctx is cancelled. Cancellation is observed between polls and
// between tag presentations, never mid-exchange.
func (m *Monitor) Events(ctx context.Context) <-chan Event {
	events := make(chan Event)
	go func() {
		defer logging.RecoverAndLog("tag monitor", false)
		defer close(events)
		m.run(ctx, events)
	}()
	return events
}

func (m *Monitor) run(ctx context.Context, events chan<- Event) {
	for {
		m.setState(StatePolling)
		if !m.waitPresence(ctx, true) {
			return
		}
		m.setState(StateTagPresent)

		session, err := m.openSession()
		if err != nil {
			m.setState(StatePolling)
			if !m.emit(ctx, events, Event{Kind: EventError, Err: err}) {
				return
			}
			// Wait the tag out so the same failure isn't reported in a loop
			if !m.waitPresence(ctx, false) {
				return
			}
			continue
		}

		m.setState(StateActive)
		if !m.emit(ctx, events, Event{Kind: EventInserted, Session: session}) {
			session.Close()
			return
		}

		if !m.waitPresence(ctx, false) {
			return
		}
		m.setState(StateRemoved)
		if !m.emit(ctx, events, Event{Kind: EventRemoved}) {
			return
		}
	}
}

// waitPresence blocks until the reader reports the wanted presence state.
// Returns false when ctx is cancelled.
func (m *Monitor) waitPresence(ctx context.Context, present bool) bool {
	rs := []transport.ReaderState{{Reader: m.reader, CurrentState: transport.StateUnaware}}
	failures := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		if err := m.ctx.GetStatusChange(rs, m.interval); err != nil {
			failures++
			if failures == 1 {
				logging.Warn(logging.CatReader, "Status poll failed", map[string]any{
					"reader": m.reader,
					"error":  err.Error(),
				})
			}
			// Back off once the reader looks gone for good
			wait := m.interval
			if failures >= 5 {
				wait = m.interval * 10
			}
			select {
			case <-ctx.Done():
				return false
			case <-time.After(wait):
			}
			continue
		}
		if failures > 0 {
			logging.Info(logging.CatReader, "Status poll recovered", map[string]any{
				"reader":   m.reader,
				"failures": failures,
			})
			failures = 0
		}
		st := rs[0].EventState
		rs[0].CurrentState = st
		if (st&transport.StatePresent != 0) == present {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.interval / 2):
		}
	}
}

// openSession connects to the present tag and reads its identifier.
func (m *Monitor) openSession() (*Session, error) {
	var card transport.Card
	var err error

	// Brief retry: the tag may still be settling into the field
	for attempt := 0; attempt < 5; attempt++ {
		card, err = m.ctx.Connect(m.reader)
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrTagLost, err)
	}

	uid, err := transport.Exchange(card, transport.GetUIDAPDU())
	if err != nil || len(uid) == 0 {
		card.Disconnect()
		if err == nil {
			err = errors.New("empty UID")
		}
		return nil, fmt.Errorf("%w: read UID: %v", ErrTagLost, err)
	}

	session := &Session{
		UID:  strings.ToUpper(hex.EncodeToString(uid)),
		card: card,
	}
	if atr, err := card.ATR(); err == nil {
		session.Family = DescribeATR(atr)
	}

	logging.Debug(logging.CatTag, "Session opened", map[string]any{
		"uid":    session.UID,
		"family": session.Family,
	})
	return session, nil
}

func (m *Monitor) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
