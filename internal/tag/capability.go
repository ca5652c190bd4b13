package tag

import (
	"errors"
	"fmt"

	"github.com/openstickers/nfc-flasher/internal/transport"
)

// ccPage is where the NFC Forum Type 2 capability container lives.
const ccPage = 3

// ndefMagic marks an NDEF-formatted Type 2 tag.
const ndefMagic = 0xE1

// ErrNotFormatted reports a tag whose capability container does not carry
// the NDEF magic byte.
var ErrNotFormatted = errors.New("tag is not NDEF formatted")

// Capability is the parsed capability container from page 3.
type Capability struct {
	Version   byte // BCD major/minor, 0x10 = 1.0
	DataBytes int  // declared size of the data area in bytes
}

// UserPages returns the number of writable 4-byte pages.
func (c Capability) UserPages() int {
	return c.DataBytes / transport.PageSize
}

// MaxMessageBytes is the largest NDEF message the data area can hold,
// reserving room for the TLV terminator.
func (c Capability) MaxMessageBytes() int {
	return c.DataBytes - 2
}

// ReadCapability reads and parses the capability container.
func ReadCapability(card transport.Card) (Capability, error) {
	data, err := transport.Exchange(card, transport.ReadPageAPDU(ccPage))
	if err != nil {
		return Capability{}, fmt.Errorf("%w: capability container: %v", ErrPageRead, err)
	}
	if len(data) < transport.PageSize {
		return Capability{}, fmt.Errorf("%w: capability container: short read", ErrPageRead)
	}
	if data[0] != ndefMagic {
		return Capability{}, fmt.Errorf("%w: magic byte 0x%02X", ErrNotFormatted, data[0])
	}
	return Capability{
		Version:   data[1],
		DataBytes: int(data[2]) * 8,
	}, nil
}
