package chat

import (
	"encoding/base64"
	"strconv"
	"strings"
)

const cursorPrefix = "m:"

// EncodeCursor returns the opaque token for "messages older than id".
func EncodeCursor(id uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatUint(uint64(id), 10)))
}

// DecodeCursor returns 0 for the first page. Clients send the literal
// "null" when they have no cursor yet.
func DecodeCursor(s string) (uint, error) {
	if s == "" || s == "null" || s == "undefined" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	v, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidCursor
	}
	return uint(id), nil
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidID
	}
	return uint(id), nil
}
