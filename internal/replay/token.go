package replay

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Token is the opaque, strictly ordered position marker issued by the CRM
// event stream. Tokens are only ever compared byte-wise and echoed back on
// resume; their internal structure belongs to the stream service.
type Token []byte

func (t Token) IsZero() bool {
	return len(t) == 0
}

func (t Token) Hex() string {
	return hex.EncodeToString(t)
}

func (t Token) String() string {
	if t.IsZero() {
		return "<none>"
	}
	return t.Hex()
}

func FromHex(s string) (Token, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("replay token parse: %w", err)
	}
	return Token(b), nil
}

// Compare orders two tokens the way the stream service does: lexicographic
// over the raw bytes.
func Compare(a, b Token) int {
	return bytes.Compare(a, b)
}
