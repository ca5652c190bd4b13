// Package ndef encodes and decodes single-record NDEF URI messages in the
// Type 2 tag TLV container, byte-exact per the NFC Forum URI Record Type
// Definition so phones and third-party readers can parse what we write.
package ndef

import (
	"errors"
	"fmt"
)

// ErrMalformed reports NDEF data that cannot be decoded.
var ErrMalformed = errors.New("malformed NDEF data")

// NDEF record header for a single short URI record:
// MB=1, ME=1, SR=1, TNF=0x01 (well-known type)
const uriRecordHeader = 0xD1

// uriPrefixes is the full abbreviation table from the NFC Forum URI Record
// Type Definition, indexed by identifier code. Code 0x00 means no
// abbreviation; the full URI is stored.
var uriPrefixes = []string{
	0x00: "",
	0x01: "http://www.",
	0x02: "https://www.",
	0x03: "http://",
	0x04: "https://",
	0x05: "tel:",
	0x06: "mailto:",
	0x07: "ftp://anonymous:anonymous@",
	0x08: "ftp://ftp.",
	0x09: "ftps://",
	0x0A: "sftp://",
	0x0B: "smb://",
	0x0C: "nfs://",
	0x0D: "ftp://",
	0x0E: "dav://",
	0x0F: "news:",
	0x10: "telnet://",
	0x11: "imap:",
	0x12: "rtsp://",
	0x13: "urn:",
	0x14: "pop:",
	0x15: "sip:",
	0x16: "sips:",
	0x17: "tftp:",
	0x18: "btspp://",
	0x19: "btl2cap://",
	0x1A: "btgoep://",
	0x1B: "tcpobex://",
	0x1C: "irdaobex://",
	0x1D: "file://",
	0x1E: "urn:epc:id:",
	0x1F: "urn:epc:tag:",
	0x20: "urn:epc:pat:",
	0x21: "urn:epc:raw:",
	0x22: "urn:epc:",
	0x23: "urn:nfc:",
}

// abbreviateURI finds the longest matching prefix and returns its identifier
// code plus the remainder of the URI. Longest-first matching keeps
// "https://www." from losing to "https://" and "urn:epc:id:" to "urn:".
func abbreviateURI(uri string) (byte, string) {
	bestCode := byte(0x00)
	bestLen := 0
	for code, prefix := range uriPrefixes {
		if code == 0 || len(prefix) <= bestLen {
			continue
		}
		if len(uri) >= len(prefix) && uri[:len(prefix)] == prefix {
			bestCode = byte(code)
			bestLen = len(prefix)
		}
	}
	return bestCode, uri[bestLen:]
}

// EncodeURI encodes a URI as a single short NDEF record (no TLV wrapping).
func EncodeURI(uri string) ([]byte, error) {
	code, remainder := abbreviateURI(uri)

	// payload = identifier code byte + unabbreviated remainder
	payloadLen := 1 + len(remainder)
	if payloadLen > 255 {
		return nil, fmt.Errorf("URI too long for a short record: %d payload bytes", payloadLen)
	}

	record := make([]byte, 0, 4+payloadLen)
	record = append(record, uriRecordHeader, 0x01, byte(payloadLen), 'U', code)
	record = append(record, remainder...)
	return record, nil
}

// DecodeURI decodes a single short NDEF URI record back into the URI string.
func DecodeURI(record []byte) (string, error) {
	if len(record) < 5 {
		return "", fmt.Errorf("%w: record too short (%d bytes)", ErrMalformed, len(record))
	}

	header := record[0]
	if header&0x10 == 0 {
		return "", fmt.Errorf("%w: not a short record (header 0x%02X)", ErrMalformed, header)
	}
	if header&0x07 != 0x01 {
		return "", fmt.Errorf("%w: unexpected TNF 0x%02X", ErrMalformed, header&0x07)
	}

	typeLen := int(record[1])
	payloadLen := int(record[2])
	if typeLen != 1 || record[3] != 'U' {
		return "", fmt.Errorf("%w: not a URI record", ErrMalformed)
	}
	if payloadLen < 1 || 4+payloadLen > len(record) {
		return "", fmt.Errorf("%w: payload length %d exceeds record", ErrMalformed, payloadLen)
	}

	code := record[4]
	if int(code) >= len(uriPrefixes) {
		return "", fmt.Errorf("%w: unknown URI prefix code 0x%02X", ErrMalformed, code)
	}

	return uriPrefixes[code] + string(record[5:4+payloadLen]), nil
}

// EncodeURIMessage encodes a URI record and wraps it in the Type 2 TLV
// container, ready for page-aligned writing.
func EncodeURIMessage(uri string) ([]byte, error) {
	record, err := EncodeURI(uri)
	if err != nil {
		return nil, err
	}
	return TLVEncode(record), nil
}

// DecodeURIMessage unwraps a TLV container and decodes the URI record inside.
func DecodeURIMessage(tlv []byte) (string, error) {
	record, err := TLVDecode(tlv)
	if err != nil {
		return "", err
	}
	return DecodeURI(record)
}
