package transport

// PC/SC pseudo-APDUs for contactless storage cards (ACR122U and compatible).
// The command opcodes are reader-specific details; everything above this
// package speaks in pages and payloads only.

// PageSize is the fixed addressable unit of Type 2 tag memory.
const PageSize = 4

// GetUIDAPDU returns the pseudo-APDU that fetches the card UID.
func GetUIDAPDU() []byte {
	return []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
}

// ReadPageAPDU returns the READ BINARY command for one 4-byte page.
func ReadPageAPDU(page byte) []byte {
	return []byte{0xFF, 0xB0, 0x00, page, PageSize}
}

// WritePageAPDU returns the UPDATE BINARY command writing 4 bytes to a page.
// data must be exactly PageSize bytes.
func WritePageAPDU(page byte, data []byte) []byte {
	cmd := []byte{0xFF, 0xD6, 0x00, page, PageSize}
	return append(cmd, data...)
}
