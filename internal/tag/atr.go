package tag

import "encoding/hex"

// DescribeATR names the card family from the ATR returned by PC/SC readers
// for contactless storage cards. Used for logging only; page I/O is attempted
// on any present tag.
func DescribeATR(atr []byte) string {
	s := hex.EncodeToString(atr)
	if len(s) < 30 || (s[0:4] != "3b8f" && s[0:4] != "3b8b") {
		return "unknown"
	}

	switch {
	case contains(s, "03060b"):
		return "ISO 15693"
	case contains(s, "030611"):
		return "FeliCa"
	case contains(s, "03060300"):
		// Byte 14 separates MIFARE Classic (01) from Type 2 tags (03)
		switch s[28:30] {
		case "01":
			return "MIFARE Classic"
		case "03":
			return "NTAG / Ultralight (Type 2)"
		}
	}
	return "ISO 14443 (unrecognized family)"
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
