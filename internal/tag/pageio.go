// Package tag implements the NFC Forum Type 2 tag protocol pieces: presence
// monitoring, page-level memory I/O and the capability container.
package tag

import (
	"errors"
	"fmt"

	"github.com/openstickers/nfc-flasher/internal/transport"
)

// FirstUserPage is where the writable data area starts. Pages 0-3 hold the
// UID, lock bytes and capability container and are never written.
const FirstUserPage = 4

var (
	// ErrPageRead reports a failed or out-of-range page read.
	ErrPageRead = errors.New("page read failed")
	// ErrPageWrite reports a failed, reserved-region or out-of-range page write.
	ErrPageWrite = errors.New("page write failed")
	// ErrCapacity reports a payload that does not fit the declared data area.
	ErrCapacity = errors.New("payload exceeds tag capacity")
)

// maxPage is the highest page number addressable by the single-byte page
// field in the READ/UPDATE BINARY APDUs. Higher pages would silently wrap.
const maxPage = int(^byte(0))

// PageIO reads and writes fixed 4-byte pages on a connected tag.
// userPages bounds the writable area; zero means the bound is unknown and
// only the reserved-region and addressing checks apply.
type PageIO struct {
	card      transport.Card
	userPages int
}

// NewPageIO wraps a connected card. userPages is the number of writable
// pages declared by the capability container (0 if unknown).
func NewPageIO(card transport.Card, userPages int) *PageIO {
	return &PageIO{card: card, userPages: userPages}
}

func (p *PageIO) lastPage() int {
	last := maxPage
	if p.userPages > 0 {
		if declared := FirstUserPage + p.userPages - 1; declared < last {
			last = declared
		}
	}
	return last
}

// ReadPage reads one 4-byte page. Reads of the reserved region are allowed;
// the capability container itself lives there.
func (p *PageIO) ReadPage(page int) ([]byte, error) {
	if page < 0 || page > p.lastPage() {
		return nil, fmt.Errorf("%w: page %d out of range", ErrPageRead, page)
	}
	data, err := transport.Exchange(p.card, transport.ReadPageAPDU(byte(page)))
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrPageRead, page, err)
	}
	if len(data) < transport.PageSize {
		return nil, fmt.Errorf("%w: page %d: short read (%d bytes)", ErrPageRead, page, len(data))
	}
	// Some readers return 16 bytes (4 pages) per read; keep only the first page
	return data[:transport.PageSize], nil
}

// WritePage writes exactly 4 bytes to one page in the user area.
func (p *PageIO) WritePage(page int, data []byte) error {
	if len(data) != transport.PageSize {
		return fmt.Errorf("%w: page write must be %d bytes, got %d", ErrPageWrite, transport.PageSize, len(data))
	}
	if page < FirstUserPage {
		return fmt.Errorf("%w: page %d is in the reserved manufacturer/lock region", ErrPageWrite, page)
	}
	if page > p.lastPage() {
		return fmt.Errorf("%w: page %d beyond declared capacity", ErrPageWrite, page)
	}
	if _, err := transport.Exchange(p.card, transport.WritePageAPDU(byte(page), data)); err != nil {
		return fmt.Errorf("%w: page %d: %v", ErrPageWrite, page, err)
	}
	return nil
}

// WriteBuffer splits buf into 4-byte chunks, zero-pads the final chunk, and
// writes them to consecutive pages in ascending order starting at startPage.
// The first page-level failure aborts immediately so a partial failure leaves
// a predictable written prefix.
func (p *PageIO) WriteBuffer(startPage int, buf []byte) error {
	for i := 0; i < len(buf); i += transport.PageSize {
		chunk := make([]byte, transport.PageSize)
		copy(chunk, buf[i:])
		if err := p.WritePage(startPage+i/transport.PageSize, chunk); err != nil {
			return err
		}
	}
	return nil
}

// ReadBuffer reads consecutive pages from startPage until at least byteCount
// bytes are collected, then truncates to the exact count.
func (p *PageIO) ReadBuffer(startPage, byteCount int) ([]byte, error) {
	buf := make([]byte, 0, byteCount+transport.PageSize)
	for page := startPage; len(buf) < byteCount; page++ {
		data, err := p.ReadPage(page)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}
	return buf[:byteCount], nil
}

// CheckCapacity verifies that a payload of the given size fits the writable
// data area before any page is touched.
func (p *PageIO) CheckCapacity(payloadLen int) error {
	if p.userPages <= 0 {
		return nil
	}
	max := p.userPages * transport.PageSize
	if payloadLen > max {
		return fmt.Errorf("%w: %d bytes, %d available", ErrCapacity, payloadLen, max)
	}
	return nil
}
