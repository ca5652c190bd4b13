package ndef

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeURI_HTTPSAbbreviation(t *testing.T) {
	record, err := EncodeURI("https://example.com")
	if err != nil {
		t.Fatalf("EncodeURI returned error: %v", err)
	}

	// D1 01 0C 55 04 "example.com"
	want := append([]byte{0xD1, 0x01, 0x0C, 'U', 0x04}, "example.com"...)
	if !bytes.Equal(record, want) {
		t.Errorf("record = % X, want % X", record, want)
	}
}

func TestEncodeURI_LongestPrefixWins(t *testing.T) {
	tests := []struct {
		uri      string
		wantCode byte
		wantRest string
	}{
		{"https://www.example.com", 0x02, "example.com"},
		{"https://example.com", 0x04, "example.com"},
		{"http://www.example.com", 0x01, "example.com"},
		{"http://example.com", 0x03, "example.com"},
		{"tel:+4512345678", 0x05, "+4512345678"},
		{"mailto:hi@example.com", 0x06, "hi@example.com"},
		{"urn:epc:id:sgtin:0614141", 0x1E, "sgtin:0614141"},
		{"urn:nfc:sn:123", 0x23, "sn:123"},
		{"urn:ietf:rfc:2141", 0x13, "ietf:rfc:2141"},
	}

	for _, tt := range tests {
		record, err := EncodeURI(tt.uri)
		if err != nil {
			t.Fatalf("EncodeURI(%q) returned error: %v", tt.uri, err)
		}
		if record[4] != tt.wantCode {
			t.Errorf("EncodeURI(%q) code = 0x%02X, want 0x%02X", tt.uri, record[4], tt.wantCode)
		}
		if got := string(record[5:]); got != tt.wantRest {
			t.Errorf("EncodeURI(%q) remainder = %q, want %q", tt.uri, got, tt.wantRest)
		}
	}
}

func TestEncodeURI_NoMatchingPrefix(t *testing.T) {
	uri := "spotify:track:4uLU6hMCjMI75M1A2tKUQC"
	record, err := EncodeURI(uri)
	if err != nil {
		t.Fatalf("EncodeURI returned error: %v", err)
	}
	if record[4] != 0x00 {
		t.Errorf("code = 0x%02X, want 0x00 for unmatched scheme", record[4])
	}
	if got := string(record[5:]); got != uri {
		t.Errorf("remainder = %q, want full URI", got)
	}
}

func TestURIRoundTrip(t *testing.T) {
	uris := []string{
		"https://example.com",
		"https://www.example.com/path?a=1&b=2",
		"http://example.com",
		"tel:+4512345678",
		"mailto:someone@example.com",
		"spotify:track:abc123",
		"ftp://ftp.example.com/pub",
		"urn:epc:raw:96:12345",
	}

	for _, uri := range uris {
		record, err := EncodeURI(uri)
		if err != nil {
			t.Fatalf("EncodeURI(%q) returned error: %v", uri, err)
		}
		got, err := DecodeURI(record)
		if err != nil {
			t.Fatalf("DecodeURI(%q) returned error: %v", uri, err)
		}
		if got != uri {
			t.Errorf("round trip: got %q, want %q", got, uri)
		}
	}
}

func TestEncodeURI_TooLong(t *testing.T) {
	uri := "https://example.com/" + strings.Repeat("x", 300)
	if _, err := EncodeURI(uri); err == nil {
		t.Fatal("expected error for URI exceeding short record payload")
	}
}

func TestDecodeURI_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		record []byte
	}{
		{"too short", []byte{0xD1, 0x01}},
		{"not short record", append([]byte{0xC1, 0x01, 0x05, 'U', 0x04}, "ab"...)},
		{"wrong TNF", append([]byte{0xD2, 0x01, 0x05, 'U', 0x04}, "ab"...)},
		{"not a URI record", append([]byte{0xD1, 0x01, 0x05, 'T', 0x02}, "en"...)},
		{"payload exceeds record", []byte{0xD1, 0x01, 0x40, 'U', 0x04, 'a'}},
		{"unknown prefix code", []byte{0xD1, 0x01, 0x02, 'U', 0x7F, 'a'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeURI(tt.record)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestEndToEndScenario(t *testing.T) {
	// Write-mode payload for the documented UID appending flow
	uri := "https://example.com?uid=04A1CCB1320289"

	msg, err := EncodeURIMessage(uri)
	if err != nil {
		t.Fatalf("EncodeURIMessage returned error: %v", err)
	}

	// TLV header
	if msg[0] != TLVNDEF {
		t.Errorf("TLV type = 0x%02X, want 0x03", msg[0])
	}
	if msg[len(msg)-1] != TLVTerminator {
		t.Errorf("terminator = 0x%02X, want 0xFE", msg[len(msg)-1])
	}

	// Record: https:// abbreviated to code 0x04
	record := msg[2 : len(msg)-1]
	if record[4] != 0x04 {
		t.Errorf("identifier code = 0x%02X, want 0x04", record[4])
	}
	if got := string(record[5:]); got != "example.com?uid=04A1CCB1320289" {
		t.Errorf("payload = %q, want %q", got, "example.com?uid=04A1CCB1320289")
	}

	got, err := DecodeURIMessage(msg)
	if err != nil {
		t.Fatalf("DecodeURIMessage returned error: %v", err)
	}
	if got != uri {
		t.Errorf("decoded URI = %q, want %q", got, uri)
	}
}
