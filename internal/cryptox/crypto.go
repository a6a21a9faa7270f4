// Package cryptox is the crypto provider: XChaCha20-Poly1305 envelopes,
// argon2 key derivation and the login verifier. Every decrypt failure is
// reported as common.ErrDecryptionFailed.
package cryptox

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sync/errgroup"
)

const (
	KeySize  = chacha20poly1305.KeySize
	SaltSize = 16

	defaultCompressThreshold = 1024
	defaultParallelism       = 4
)

// KDFParams are the argon2 cost parameters. Variant is the descriptor name
// written into envelopes (argon2i13 or argon2id).
type KDFParams struct {
	Variant   string
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

var (
	// DefaultKDF is used for all new password-derived keys.
	DefaultKDF = KDFParams{Variant: KDFArgon2i13, Time: 3, MemoryKiB: 64 * 1024, Threads: 1}
	// LegacyKDF is what older builds used; only tried when DefaultKDF fails to decrypt.
	LegacyKDF = KDFParams{Variant: KDFArgon2id, Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
	// TestKDF keeps tests fast.
	TestKDF = KDFParams{Variant: KDFArgon2i13, Time: 1, MemoryKiB: 64, Threads: 1}
)

// Provider seals and opens envelopes. It is stateless apart from its
// options and safe for concurrent use.
type Provider struct {
	kdf               KDFParams
	compressThreshold int
	parallelism       int
}

type Option func(*Provider)

func WithKDF(p KDFParams) Option { return func(pr *Provider) { pr.kdf = p } }

// WithCompressThreshold sets the plaintext size above which payloads are
// gzip-compressed. Negative disables compression.
func WithCompressThreshold(n int) Option { return func(pr *Provider) { pr.compressThreshold = n } }

func WithParallelism(n int) Option { return func(pr *Provider) { pr.parallelism = n } }

func NewProvider(opts ...Option) *Provider {
	p := &Provider{kdf: DefaultKDF, compressThreshold: defaultCompressThreshold, parallelism: defaultParallelism}
	for _, o := range opts {
		o(p)
	}
	if p.parallelism < 1 {
		p.parallelism = 1
	}
	return p
}

// KDF returns the provider's primary KDF parameters.
func (p *Provider) KDF() KDFParams { return p.kdf }

// WithKDFParams returns a copy of p that derives keys with k.
func (p *Provider) WithKDFParams(k KDFParams) *Provider {
	cp := *p
	cp.kdf = k
	return &cp
}

// DeriveKey stretches password with salt into a 32-byte key.
func (p *Provider) DeriveKey(password, salt []byte) []byte {
	return deriveKey(p.kdf, p.kdf.Variant, password, salt)
}

func deriveKey(k KDFParams, variant string, password, salt []byte) []byte {
	if variant == KDFArgon2id {
		return argon2.IDKey(password, salt, k.Time, k.MemoryKiB, k.Threads, KeySize)
	}
	return argon2.Key(password, salt, k.Time, k.MemoryKiB, k.Threads, KeySize)
}

// MakeVerifier turns a derived key into the value the server stores to check
// logins. The key itself never leaves the device.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// Encrypt seals plaintext under key. format is an opaque label stored with
// the envelope (e.g. "json", "text").
func (p *Provider) Encrypt(key, plaintext []byte, format string) (*Envelope, error) {
	return p.seal(key, plaintext, format, nil)
}

// Decrypt opens env with key.
func (p *Provider) Decrypt(key []byte, env *Envelope) ([]byte, error) {
	alg, err := env.Algorithm()
	if err != nil {
		return nil, err
	}
	return open(key, env, alg)
}

// EncryptWithPassword derives a key from password and a fresh salt and seals
// plaintext with it. The salt travels in the envelope.
func (p *Provider) EncryptWithPassword(password, plaintext []byte, format string) (*Envelope, error) {
	salt := common.GenerateRandByteArray(SaltSize)
	key := p.DeriveKey(password, salt)
	defer common.WipeByteArray(key)
	return p.seal(key, plaintext, format, salt)
}

// DecryptWithPassword re-derives the key from password and the envelope
// salt using this provider's KDF costs and the variant named by env.Alg.
func (p *Provider) DecryptWithPassword(password []byte, env *Envelope) ([]byte, error) {
	alg, err := env.Algorithm()
	if err != nil {
		return nil, err
	}
	salt, err := decode(alg.Encoding, env.Salt)
	if err != nil {
		return nil, err
	}
	key := deriveKey(p.kdf, alg.KDF, password, salt)
	defer common.WipeByteArray(key)
	return open(key, env, alg)
}

// SealJSON marshals v and encrypts it.
func (p *Provider) SealJSON(key []byte, v any) (*Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return p.Encrypt(key, plaintext, "json")
}

// OpenJSON decrypts env and unmarshals the plaintext into v.
func (p *Provider) OpenJSON(key []byte, env *Envelope, v any) error {
	plaintext, err := p.Decrypt(key, env)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// Plain is one input for EncryptMulti.
type Plain struct {
	Data   []byte
	Format string
}

// EncryptMulti seals items in parallel under key. Output order matches input.
func (p *Provider) EncryptMulti(ctx context.Context, key []byte, items []Plain) ([]*Envelope, error) {
	out := make([]*Envelope, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			env, err := p.Encrypt(key, items[i].Data, items[i].Format)
			if err != nil {
				return err
			}
			out[i] = env
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DecryptMulti opens envs in parallel under key. Output order matches input.
func (p *Provider) DecryptMulti(ctx context.Context, key []byte, envs []*Envelope) ([][]byte, error) {
	out := make([][]byte, len(envs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i := range envs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := p.Decrypt(key, envs[i])
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) seal(key, plaintext []byte, format string, salt []byte) (*Envelope, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	alg := DefaultAlgorithm()
	alg.KDF = p.kdf.Variant
	payload := plaintext
	if p.compressThreshold >= 0 && len(plaintext) > p.compressThreshold {
		if payload, err = gzipBytes(plaintext); err != nil {
			return nil, err
		}
		alg.Compression = &Compression{Alg: CompressionGzip}
	}

	nonce := common.GenerateRandByteArray(aead.NonceSize())
	ciphertext := aead.Seal(nil, nonce, payload, nil)

	env := &Envelope{
		Cipher: encode(alg.Encoding, ciphertext),
		Nonce:  encode(alg.Encoding, nonce),
		Alg:    alg.String(),
		Format: format,
		Length: len(plaintext),
	}
	if salt != nil {
		env.Salt = encode(alg.Encoding, salt)
	}
	return env, nil
}

func open(key []byte, env *Envelope, alg Algorithm) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	nonce, err := decode(alg.Encoding, env.Nonce)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce size", common.ErrDecryptionFailed)
	}
	ciphertext, err := decode(alg.Encoding, env.Cipher)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	if alg.Compression != nil {
		if plaintext, err = gunzipBytes(plaintext, env.Length); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
		}
	}
	return plaintext, nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gunzipBytes inflates b and insists on exactly length bytes of output, so
// a forged envelope cannot expand past its declared size.
func gunzipBytes(b []byte, length int) ([]byte, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, int64(length)+1))
	if err != nil {
		return nil, err
	}
	if len(out) != length {
		return nil, fmt.Errorf("inflated size %d does not match length %d", len(out), length)
	}
	return out, nil
}
