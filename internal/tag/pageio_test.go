package tag

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openstickers/nfc-flasher/internal/transport/transporttest"
)

func TestWriteBuffer_SplitsAndPads(t *testing.T) {
	card := transporttest.NewMockCard([]byte{0x04, 0xA1})
	io := NewPageIO(card, 36)

	// 10 bytes -> 3 pages, last page zero-padded
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if err := io.WriteBuffer(FirstUserPage, buf); err != nil {
		t.Fatalf("WriteBuffer returned error: %v", err)
	}

	written := card.WrittenPages()
	if !bytes.Equal(written, []byte{4, 5, 6}) {
		t.Errorf("written pages = %v, want [4 5 6]", written)
	}
	if got := card.Page(6); !bytes.Equal(got, []byte{9, 10, 0, 0}) {
		t.Errorf("final page = % X, want 09 0A 00 00", got)
	}
}

func TestWriteBuffer_ExactMultiple(t *testing.T) {
	card := transporttest.NewMockCard(nil)
	io := NewPageIO(card, 36)

	if err := io.WriteBuffer(FirstUserPage, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("WriteBuffer returned error: %v", err)
	}
	if got := card.WrittenPages(); !bytes.Equal(got, []byte{4, 5}) {
		t.Errorf("written pages = %v, want [4 5]", got)
	}
}

func TestWriteBuffer_StopsAtFirstFailure(t *testing.T) {
	card := transporttest.NewMockCard(nil).FailWriteAt(3)
	io := NewPageIO(card, 36)

	err := io.WriteBuffer(FirstUserPage, make([]byte, 20))
	if !errors.Is(err, ErrPageWrite) {
		t.Fatalf("expected ErrPageWrite, got %v", err)
	}

	// Pages before the failure point are written; nothing after it is touched
	if got := card.WrittenPages(); !bytes.Equal(got, []byte{4, 5}) {
		t.Errorf("written pages = %v, want [4 5]", got)
	}
}

func TestWritePage_RejectsReservedRegion(t *testing.T) {
	card := transporttest.NewMockCard(nil)
	io := NewPageIO(card, 36)

	for page := 0; page < FirstUserPage; page++ {
		if err := io.WritePage(page, make([]byte, 4)); !errors.Is(err, ErrPageWrite) {
			t.Errorf("page %d: expected ErrPageWrite, got %v", page, err)
		}
	}
	if len(card.WrittenPages()) != 0 {
		t.Error("reserved-region writes reached the card")
	}
}

func TestWritePage_RejectsBeyondCapacity(t *testing.T) {
	card := transporttest.NewMockCard(nil)
	io := NewPageIO(card, 36) // pages 4..39

	if err := io.WritePage(39, make([]byte, 4)); err != nil {
		t.Errorf("last in-bounds page rejected: %v", err)
	}
	if err := io.WritePage(40, make([]byte, 4)); !errors.Is(err, ErrPageWrite) {
		t.Errorf("expected ErrPageWrite past capacity, got %v", err)
	}
}

func TestPageIO_RejectsUnaddressablePages(t *testing.T) {
	// A hostile CC can declare more pages than the single-byte APDU page
	// field can address; those must never wrap onto low pages.
	card := transporttest.NewMockCard(nil)
	io := NewPageIO(card, 600)

	if err := io.WritePage(255, make([]byte, 4)); err != nil {
		t.Errorf("page 255 rejected: %v", err)
	}
	if err := io.WritePage(256, make([]byte, 4)); !errors.Is(err, ErrPageWrite) {
		t.Errorf("expected ErrPageWrite for page 256, got %v", err)
	}
	if _, err := io.ReadPage(256); !errors.Is(err, ErrPageRead) {
		t.Errorf("expected ErrPageRead for page 256, got %v", err)
	}
	if got := card.WrittenPages(); !bytes.Equal(got, []byte{255}) {
		t.Errorf("written pages = %v, want [255]", got)
	}

	// Unknown capacity is bounded by addressability too
	if _, err := NewPageIO(card, 0).ReadBuffer(250, 40); !errors.Is(err, ErrPageRead) {
		t.Errorf("expected ErrPageRead when a buffer read runs past page 255, got %v", err)
	}
}

func TestWritePage_RejectsWrongSize(t *testing.T) {
	io := NewPageIO(transporttest.NewMockCard(nil), 36)

	if err := io.WritePage(4, []byte{1, 2, 3}); !errors.Is(err, ErrPageWrite) {
		t.Errorf("expected ErrPageWrite for 3 bytes, got %v", err)
	}
	if err := io.WritePage(4, make([]byte, 5)); !errors.Is(err, ErrPageWrite) {
		t.Errorf("expected ErrPageWrite for 5 bytes, got %v", err)
	}
}

func TestReadBuffer_TruncatesToCount(t *testing.T) {
	card := transporttest.NewMockCard(nil).
		WithMemory(4, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	io := NewPageIO(card, 36)

	got, err := io.ReadBuffer(4, 10)
	if err != nil {
		t.Fatalf("ReadBuffer returned error: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}) {
		t.Errorf("ReadBuffer = % X", got)
	}
}

func TestReadPage_TruncatesLongResponse(t *testing.T) {
	// ACR122-style readers return 16 bytes per READ BINARY
	long := append(bytes.Repeat([]byte{0xAA}, 16), 0x90, 0x00)
	card := transporttest.NewMockCard(nil).WithResponse("ffb00004", long)
	io := NewPageIO(card, 36)

	got, err := io.ReadPage(4)
	if err != nil {
		t.Fatalf("ReadPage returned error: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("ReadPage length = %d, want 4", len(got))
	}
}

func TestCheckCapacity(t *testing.T) {
	io := NewPageIO(transporttest.NewMockCard(nil), 36) // 144 bytes

	if err := io.CheckCapacity(144); err != nil {
		t.Errorf("exact fit rejected: %v", err)
	}
	if err := io.CheckCapacity(145); !errors.Is(err, ErrCapacity) {
		t.Errorf("expected ErrCapacity, got %v", err)
	}

	// Unknown capacity: no bound is enforced
	unbounded := NewPageIO(transporttest.NewMockCard(nil), 0)
	if err := unbounded.CheckCapacity(10000); err != nil {
		t.Errorf("unbounded capacity rejected: %v", err)
	}
}
