// Package transporttest provides scripted in-memory implementations of the
// transport interfaces for tests. Responses are keyed by command hex with
// prefix matching, the same way captured reader traces are replayed.
package transporttest

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/openstickers/nfc-flasher/internal/transport"
)

// MockFactory hands out a fixed Context.
type MockFactory struct {
	Ctx *MockContext
	Err error
}

func (f *MockFactory) Establish() (transport.Context, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Ctx, nil
}

// MockContext implements transport.Context.
type MockContext struct {
	mu       sync.Mutex
	readers  []string
	cards    map[string]*MockCard
	presence []bool // scripted presence per GetStatusChange call; last value sticks
	pos      int
	released  bool
	listErr   error
	statusErr error
}

// NewMockContext creates a context with one reader and no card.
func NewMockContext() *MockContext {
	return &MockContext{
		readers: []string{"ACS ACR122U PICC Interface"},
		cards:   make(map[string]*MockCard),
	}
}

// WithReaders replaces the reader list.
func (m *MockContext) WithReaders(readers ...string) *MockContext {
	m.readers = readers
	return m
}

// WithCard places a card on a reader.
func (m *MockContext) WithCard(reader string, card *MockCard) *MockContext {
	m.cards[reader] = card
	return m
}

// WithPresence scripts the presence reported by successive GetStatusChange
// calls. The final value repeats once the script is exhausted.
func (m *MockContext) WithPresence(presence ...bool) *MockContext {
	m.presence = presence
	return m
}

// WithStatusError makes every GetStatusChange call fail.
func (m *MockContext) WithStatusError(err error) *MockContext {
	m.statusErr = err
	return m
}

// WithListError makes ListReaders fail.
func (m *MockContext) WithListError(err error) *MockContext {
	m.listErr = err
	return m
}

func (m *MockContext) ListReaders() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.readers, nil
}

func (m *MockContext) Connect(reader string) (transport.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[reader]
	if !ok {
		return nil, errors.New("no card present")
	}
	return card, nil
}

func (m *MockContext) GetStatusChange(states []transport.ReaderState, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusErr != nil {
		return m.statusErr
	}

	present := false
	if len(m.presence) > 0 {
		idx := m.pos
		if idx >= len(m.presence) {
			idx = len(m.presence) - 1
		}
		present = m.presence[idx]
		m.pos++
	}

	for i := range states {
		if present {
			states[i].EventState = transport.StatePresent | transport.StateChanged
		} else {
			states[i].EventState = transport.StateEmpty | transport.StateChanged
		}
	}
	return nil
}

func (m *MockContext) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
	return nil
}

// Released reports whether Release was called.
func (m *MockContext) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// MockCard implements transport.Card with scripted responses and a page store.
type MockCard struct {
	mu           sync.Mutex
	atr          []byte
	uid          []byte
	responses    map[string][]byte // command hex prefix -> raw response
	pages        map[byte][]byte   // page memory backing reads and writes
	writes       []byte            // pages written, in order
	failAfter    int               // fail the n-th write (1-based); 0 = never
	writeCount   int
	transmitErr  error
	disconnected bool
}

// NewMockCard creates a card with the given UID and an NTAG-style ATR.
func NewMockCard(uid []byte) *MockCard {
	atr, _ := hex.DecodeString("3b8f8001804f0ca0000003060300030000000068")
	return &MockCard{
		atr:       atr,
		uid:       uid,
		responses: make(map[string][]byte),
		pages:     make(map[byte][]byte),
	}
}

// WithATR overrides the ATR.
func (m *MockCard) WithATR(atr []byte) *MockCard {
	m.atr = atr
	return m
}

// WithResponse scripts a raw response (including status words) for any
// command whose hex encoding starts with cmdHexPrefix.
func (m *MockCard) WithResponse(cmdHexPrefix string, rsp []byte) *MockCard {
	m.responses[cmdHexPrefix] = rsp
	return m
}

// WithPage preloads 4 bytes of page memory.
func (m *MockCard) WithPage(page byte, data []byte) *MockCard {
	p := make([]byte, 4)
	copy(p, data)
	m.pages[page] = p
	return m
}

// WithMemory preloads consecutive pages starting at startPage.
func (m *MockCard) WithMemory(startPage byte, data []byte) *MockCard {
	for i := 0; i < len(data); i += 4 {
		end := i + 4
		if end > len(data) {
			end = len(data)
		}
		m.WithPage(startPage+byte(i/4), data[i:end])
	}
	return m
}

// FailWriteAt makes the n-th page write (1-based) fail with SW 6300.
func (m *MockCard) FailWriteAt(n int) *MockCard {
	m.failAfter = n
	return m
}

// WithTransmitError makes every Transmit fail outright.
func (m *MockCard) WithTransmitError(err error) *MockCard {
	m.transmitErr = err
	return m
}

func (m *MockCard) Transmit(cmd []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transmitErr != nil {
		return nil, m.transmitErr
	}
	if m.disconnected {
		return nil, errors.New("card disconnected")
	}

	cmdHex := hex.EncodeToString(cmd)
	for prefix, rsp := range m.responses {
		if len(cmdHex) >= len(prefix) && cmdHex[:len(prefix)] == prefix {
			return rsp, nil
		}
	}

	// GET UID: FF CA 00 00 00
	if len(cmd) >= 4 && cmd[0] == 0xFF && cmd[1] == 0xCA {
		return append(append([]byte{}, m.uid...), 0x90, 0x00), nil
	}

	// UPDATE BINARY: FF D6 00 <page> 04 <data>
	if len(cmd) >= 9 && cmd[0] == 0xFF && cmd[1] == 0xD6 {
		m.writeCount++
		if m.failAfter > 0 && m.writeCount >= m.failAfter {
			return []byte{0x63, 0x00}, nil
		}
		page := cmd[3]
		data := make([]byte, 4)
		copy(data, cmd[5:9])
		m.pages[page] = data
		m.writes = append(m.writes, page)
		return []byte{0x90, 0x00}, nil
	}

	// READ BINARY: FF B0 00 <page> 04
	if len(cmd) >= 5 && cmd[0] == 0xFF && cmd[1] == 0xB0 {
		page := cmd[3]
		data, ok := m.pages[page]
		if !ok {
			data = make([]byte, 4)
		}
		return append(append([]byte{}, data...), 0x90, 0x00), nil
	}

	// Command not supported
	return []byte{0x6A, 0x81}, nil
}

func (m *MockCard) ATR() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.atr, nil
}

func (m *MockCard) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	return nil
}

// Disconnected reports whether Disconnect was called.
func (m *MockCard) Disconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}

// WrittenPages returns the page numbers written, in write order.
func (m *MockCard) WrittenPages() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte{}, m.writes...)
}

// Page returns the current 4 bytes stored at a page.
func (m *MockCard) Page(page byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte{}, m.pages[page]...)
}

// Memory concatenates count pages starting at startPage.
func (m *MockCard) Memory(startPage byte, count int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for i := 0; i < count; i++ {
		data, ok := m.pages[startPage+byte(i)]
		if !ok {
			data = make([]byte, 4)
		}
		out = append(out, data...)
	}
	return out
}
