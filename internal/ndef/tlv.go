package ndef

import "fmt"

// Type 2 tag TLV block types.
const (
	TLVNull       = 0x00 // padding, skipped during parsing
	TLVNDEF       = 0x03 // NDEF message block
	TLVTerminator = 0xFE // last block in the data area
)

// TLVEncode wraps an NDEF message in the Type 2 tag container:
// type byte 0x03, the message length (1-byte form below 255, otherwise
// 0xFF plus 2-byte big-endian), the message, then the terminator 0xFE.
func TLVEncode(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+5)
	out = append(out, TLVNDEF)
	if len(msg) < 255 {
		out = append(out, byte(len(msg)))
	} else {
		out = append(out, 0xFF, byte(len(msg)>>8), byte(len(msg)))
	}
	out = append(out, msg...)
	out = append(out, TLVTerminator)
	return out
}

// TLVDecode locates the NDEF message block in a Type 2 tag data area and
// returns the message bytes. Leading NULL TLVs are skipped. The declared
// length must fit the buffer and the message must be followed by the
// terminator block.
func TLVDecode(buf []byte) ([]byte, error) {
	i := 0
	for i < len(buf) && buf[i] == TLVNull {
		i++
	}
	if i >= len(buf) || buf[i] != TLVNDEF {
		return nil, fmt.Errorf("%w: no NDEF message TLV found", ErrMalformed)
	}
	i++

	if i >= len(buf) {
		return nil, fmt.Errorf("%w: missing TLV length", ErrMalformed)
	}

	var msgLen int
	if buf[i] == 0xFF {
		if i+2 >= len(buf) {
			return nil, fmt.Errorf("%w: truncated extended TLV length", ErrMalformed)
		}
		msgLen = int(buf[i+1])<<8 | int(buf[i+2])
		i += 3
	} else {
		msgLen = int(buf[i])
		i++
	}

	if i+msgLen > len(buf) {
		return nil, fmt.Errorf("%w: declared length %d exceeds buffer", ErrMalformed, msgLen)
	}
	msg := buf[i : i+msgLen]

	if i+msgLen >= len(buf) || buf[i+msgLen] != TLVTerminator {
		return nil, fmt.Errorf("%w: missing terminator TLV", ErrMalformed)
	}

	return msg, nil
}

// MessageLength parses only the TLV header and returns the total number of
// bytes occupied by the container including type, length field, message and
// terminator. Used to discover how much tag memory must be read.
func MessageLength(header []byte) (int, error) {
	i := 0
	for i < len(header) && header[i] == TLVNull {
		i++
	}
	if i >= len(header) || header[i] != TLVNDEF {
		return 0, fmt.Errorf("%w: no NDEF message TLV found", ErrMalformed)
	}
	i++
	if i >= len(header) {
		return 0, fmt.Errorf("%w: missing TLV length", ErrMalformed)
	}
	if header[i] == 0xFF {
		if i+2 >= len(header) {
			return 0, fmt.Errorf("%w: truncated extended TLV length", ErrMalformed)
		}
		msgLen := int(header[i+1])<<8 | int(header[i+2])
		return i + 3 + msgLen + 1, nil
	}
	return i + 1 + int(header[i]) + 1, nil
}
