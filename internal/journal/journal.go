// Package journal keeps an append-only record of flash and read operations
// as a stream of CBOR-encoded entries.
package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// CBOR encoding/decoding modes
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeUnix,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder: %v", err))
	}

	decMode, err = cbor.DecOptions{
		IntDec: cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder: %v", err))
	}
}

// Mode names the operation an entry records.
type Mode string

const (
	ModeWrite Mode = "write"
	ModeRead  Mode = "read"
)

// Entry is one recorded tag operation. Integer keys keep the on-disk
// entries compact.
type Entry struct {
	ID    string    `cbor:"0,keyasint"`
	Time  time.Time `cbor:"1,keyasint"`
	Mode  Mode      `cbor:"2,keyasint"`
	UID   string    `cbor:"3,keyasint"`
	URL   string    `cbor:"4,keyasint,omitempty"`
	Bytes int       `cbor:"5,keyasint,omitempty"`
	Pages int       `cbor:"6,keyasint,omitempty"`
	Error string    `cbor:"7,keyasint,omitempty"`
}

// OK reports whether the recorded operation succeeded.
func (e Entry) OK() bool {
	return e.Error == ""
}

// Journal appends entries to a single file. Safe for concurrent use.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	enc  *cbor.Encoder
}

// Open opens (or creates) the journal file at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{file: f, enc: encMode.NewEncoder(f)}, nil
}

// Record assigns the entry an ID and timestamp and appends it.
func (j *Journal) Record(e Entry) (Entry, error) {
	e.ID = uuid.NewString()
	e.Time = time.Now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return e, errors.New("journal is closed")
	}
	if err := j.enc.Encode(e); err != nil {
		return e, fmt.Errorf("failed to append journal entry: %w", err)
	}
	return e, nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ReadAll decodes every entry from a journal file, oldest first.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	dec := decMode.NewDecoder(f)
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, fmt.Errorf("failed to decode journal entry: %w", err)
		}
		entries = append(entries, e)
	}
}
