package cryptox

import (
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/common"
)

// Envelope is the self-describing ciphertext record stored locally and sent
// over the wire. Cipher and Nonce are base64 encoded per Alg.
type Envelope struct {
	Cipher string `json:"cipher"`
	Nonce  string `json:"iv"`
	Salt   string `json:"salt,omitempty"`
	Alg    string `json:"alg"`
	Format string `json:"format,omitempty"`
	Length int    `json:"length"`
}

// Algorithm parses e.Alg.
func (e *Envelope) Algorithm() (Algorithm, error) {
	return ParseAlgorithm(e.Alg)
}

func encoding(n int) *base64.Encoding {
	if n == EncodingStandard {
		return base64.StdEncoding
	}
	return base64.RawURLEncoding
}

func encode(n int, b []byte) string {
	return encoding(n).EncodeToString(b)
}

func decode(n int, s string) ([]byte, error) {
	b, err := encoding(n).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", common.ErrDecryptionFailed, err)
	}
	return b, nil
}
