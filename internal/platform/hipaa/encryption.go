// Package hipaa encrypts protected health information at field level before
// it reaches a store.
package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// FieldEncryptor turns a single PHI value into ciphertext and back.
type FieldEncryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Ciphertexts look like "enc:v<version>:<base64(nonce|sealed)>".
const sealedPrefix = "enc:v"

// gcmCipher is AES-256-GCM with a random nonce prepended to each value.
type gcmCipher struct {
	aead cipher.AEAD
}

func newGCMCipher(key []byte) (*gcmCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi cipher: %w", err)
	}
	return &gcmCipher{aead: aead}, nil
}

func (c *gcmCipher) seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("phi encrypt: nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(c.aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (c *gcmCipher) open(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("phi decrypt: %w", err)
	}
	n := c.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("phi decrypt: ciphertext too short")
	}
	plain, err := c.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("phi decrypt: %w", err)
	}
	return string(plain), nil
}

// RotatingEncryptor encrypts with the current key version and decrypts with
// whichever registered version a value was sealed under. Values without the
// sealed prefix were written before encryption was switched on and are
// returned unchanged.
type RotatingEncryptor struct {
	mu         sync.RWMutex
	current    *gcmCipher
	currentVer int
	previous   map[int]*gcmCipher
}

func NewRotatingEncryptor(key []byte, version int) (*RotatingEncryptor, error) {
	if version < 1 {
		return nil, fmt.Errorf("phi key version must be positive, got %d", version)
	}
	c, err := newGCMCipher(key)
	if err != nil {
		return nil, err
	}
	return &RotatingEncryptor{current: c, currentVer: version, previous: make(map[int]*gcmCipher)}, nil
}

// AddPreviousKey registers a retired key so values sealed under it still open.
func (r *RotatingEncryptor) AddPreviousKey(key []byte, version int) error {
	c, err := newGCMCipher(key)
	if err != nil {
		return fmt.Errorf("previous key v%d: %w", version, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previous[version] = c
	return nil
}

func (r *RotatingEncryptor) Encrypt(plaintext string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sealed, err := r.current.seal(plaintext)
	if err != nil {
		return "", err
	}
	return sealedPrefix + strconv.Itoa(r.currentVer) + ":" + sealed, nil
}

func (r *RotatingEncryptor) Decrypt(ciphertext string) (string, error) {
	version, body, ok := parseSealed(ciphertext)
	if !ok {
		return ciphertext, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.current
	if version != r.currentVer {
		var found bool
		if c, found = r.previous[version]; !found {
			return "", fmt.Errorf("phi decrypt: no key for version %d", version)
		}
	}
	return c.open(body)
}

// NeedsReEncryption reports whether a stored value is plaintext or sealed
// under a retired key.
func (r *RotatingEncryptor) NeedsReEncryption(value string) bool {
	version, _, ok := parseSealed(value)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !ok || version != r.currentVer
}

func parseSealed(s string) (version int, body string, ok bool) {
	if !strings.HasPrefix(s, sealedPrefix) {
		return 0, "", false
	}
	rest := s[len(sealedPrefix):]
	idx := strings.IndexByte(rest, ':')
	if idx <= 0 {
		return 0, "", false
	}
	v, err := strconv.Atoi(rest[:idx])
	if err != nil || v < 1 {
		return 0, "", false
	}
	return v, rest[idx+1:], true
}

// NewFromConfig builds the encryptor from HIPAA_ENCRYPTION_KEY (64 hex chars),
// its version and HIPAA_PREVIOUS_KEYS ("1:<hex>,2:<hex>"). An empty key
// disables encryption and yields a nil encryptor.
func NewFromConfig(currentHex string, version int, previous string) (FieldEncryptor, error) {
	if currentHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(currentHex)
	if err != nil {
		return nil, fmt.Errorf("HIPAA_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	enc, err := NewRotatingEncryptor(key, version)
	if err != nil {
		return nil, fmt.Errorf("HIPAA_ENCRYPTION_KEY: %w", err)
	}
	for _, entry := range strings.Split(previous, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		verStr, keyHex, found := strings.Cut(entry, ":")
		v, err := strconv.Atoi(verStr)
		if !found || err != nil {
			return nil, fmt.Errorf("HIPAA_PREVIOUS_KEYS entry %q must be <version>:<hex key>", entry)
		}
		prev, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("HIPAA_PREVIOUS_KEYS v%d is not valid hex: %w", v, err)
		}
		if err := enc.AddPreviousKey(prev, v); err != nil {
			return nil, fmt.Errorf("HIPAA_PREVIOUS_KEYS: %w", err)
		}
	}
	return enc, nil
}

// Seal encrypts value with enc. A nil encryptor or an empty value passes
// through.
func Seal(enc FieldEncryptor, value string) (string, error) {
	if enc == nil || value == "" {
		return value, nil
	}
	out, err := enc.Encrypt(value)
	if err != nil {
		return "", fmt.Errorf("encrypting PHI field: %w", err)
	}
	return out, nil
}

// Open reverses Seal.
func Open(enc FieldEncryptor, value string) (string, error) {
	if enc == nil || value == "" {
		return value, nil
	}
	out, err := enc.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("decrypting PHI field: %w", err)
	}
	return out, nil
}

func SealPtr(enc FieldEncryptor, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	out, err := Seal(enc, *value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func OpenPtr(enc FieldEncryptor, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	out, err := Open(enc, *value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SealAll encrypts each element into a new slice.
func SealAll(enc FieldEncryptor, values []string) ([]string, error) {
	return mapAll(values, func(v string) (string, error) { return Seal(enc, v) })
}

func OpenAll(enc FieldEncryptor, values []string) ([]string, error) {
	return mapAll(values, func(v string) (string, error) { return Open(enc, v) })
}

func mapAll(values []string, fn func(string) (string, error)) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		var err error
		if out[i], err = fn(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
