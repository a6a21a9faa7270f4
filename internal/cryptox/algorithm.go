package cryptox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophnotes/internal/common"
)

const (
	CipherXChaCha = "xcha"

	KDFArgon2i13 = "argon2i13"
	KDFArgon2id  = "argon2id"

	CompressionNone = "none"
	CompressionGzip = "gzip"

	// EncodingURLSafe is base64 URL alphabet without padding.
	EncodingURLSafe = 7
	// EncodingStandard is the standard padded base64 alphabet.
	EncodingStandard = 1
)

// Compression names the algorithm a sealed payload was compressed with.
type Compression struct {
	Alg string
}

// Algorithm is the parsed form of an envelope's alg descriptor
// "cipher-kdf-compressed-compressionAlg-encoding", e.g. xcha-argon2i13-0-none-7.
// Compression is nil for uncompressed payloads.
type Algorithm struct {
	Cipher      string
	KDF         string
	Compression *Compression
	Encoding    int
}

// DefaultAlgorithm describes what Provider writes for uncompressed payloads.
func DefaultAlgorithm() Algorithm {
	return Algorithm{
		Cipher:   CipherXChaCha,
		KDF:      KDFArgon2i13,
		Encoding: EncodingURLSafe,
	}
}

func (a Algorithm) String() string {
	compressed, alg := "0", CompressionNone
	if a.Compression != nil {
		compressed, alg = "1", a.Compression.Alg
	}
	return strings.Join([]string{a.Cipher, a.KDF, compressed, alg, strconv.Itoa(a.Encoding)}, "-")
}

// ParseAlgorithm parses a descriptor. The legacy three-part form
// "cipher-kdf-encoding" is read as uncompressed.
func ParseAlgorithm(s string) (Algorithm, error) {
	parts := strings.Split(s, "-")

	var a Algorithm
	var enc string
	switch len(parts) {
	case 3:
		a = Algorithm{Cipher: parts[0], KDF: parts[1]}
		enc = parts[2]
	case 5:
		a = Algorithm{Cipher: parts[0], KDF: parts[1]}
		switch parts[2] {
		case "0":
			if parts[3] != CompressionNone {
				return Algorithm{}, fmt.Errorf("%w: compression %q without flag in %q", common.ErrUnsupportedAlgorithm, parts[3], s)
			}
		case "1":
			a.Compression = &Compression{Alg: parts[3]}
		default:
			return Algorithm{}, fmt.Errorf("%w: bad compression flag in %q", common.ErrUnsupportedAlgorithm, s)
		}
		enc = parts[4]
	default:
		return Algorithm{}, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, s)
	}

	n, err := strconv.Atoi(enc)
	if err != nil {
		return Algorithm{}, fmt.Errorf("%w: bad encoding in %q", common.ErrUnsupportedAlgorithm, s)
	}
	a.Encoding = n

	if err := a.validate(); err != nil {
		return Algorithm{}, err
	}
	return a, nil
}

func (a Algorithm) validate() error {
	if a.Cipher != CipherXChaCha {
		return fmt.Errorf("%w: cipher %q", common.ErrUnsupportedAlgorithm, a.Cipher)
	}
	if a.KDF != KDFArgon2i13 && a.KDF != KDFArgon2id {
		return fmt.Errorf("%w: kdf %q", common.ErrUnsupportedAlgorithm, a.KDF)
	}
	if a.Encoding != EncodingURLSafe && a.Encoding != EncodingStandard {
		return fmt.Errorf("%w: encoding %d", common.ErrUnsupportedAlgorithm, a.Encoding)
	}
	if a.Compression != nil && a.Compression.Alg != CompressionGzip {
		return fmt.Errorf("%w: compression %q", common.ErrUnsupportedAlgorithm, a.Compression.Alg)
	}
	return nil
}
