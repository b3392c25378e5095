// Package statetoken implements the CSRF state codec used to bind OAuth
// callbacks to the user that initiated the connect flow.
//
// A token is hex(iv) ":" hex(ciphertext) where the ciphertext is an
// AES-256-CBC encryption of a small JSON payload carrying the user id and
// the issue timestamp. Tokens expire after a TTL and are single-use.
package statetoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/operia/operia/internal/errors"
)

const keyLength = 32

// Codec encodes and decodes OAuth state tokens.
type Codec struct {
	key      []byte
	ttl      time.Duration
	consumed *consumedStore
	now      func() time.Time
}

type payload struct {
	UserID   string `json:"uid"`
	IssuedAt int64  `json:"iat"`
}

// New creates a Codec. The encryption key is derived from secret by
// padding with zero bytes or truncating to 32 bytes. A ttl of zero
// disables expiry and single-use tracking (legacy behavior, kept for
// tests of the raw cipher round-trip).
func New(secret string, ttl time.Duration) *Codec {
	key := make([]byte, keyLength)
	copy(key, secret)

	c := &Codec{
		key: key,
		ttl: ttl,
		now: time.Now,
	}
	if ttl > 0 {
		c.consumed = newConsumedStore(ttl)
	}
	return c
}

// Encode produces an opaque state token for the given user id.
func (c *Codec) Encode(userID string) (string, error) {
	plain, err := json.Marshal(payload{UserID: userID, IssuedAt: c.now().Unix()})
	if err != nil {
		return "", err
	}
	plain = pkcs7Pad(plain, aes.BlockSize)

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plain)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decode recovers the user id from a state token. It fails with
// ErrInvalidState if the token is malformed, undecryptable, expired, or
// was decoded before (replay).
func (c *Codec) Decode(token string) (string, error) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return "", &errors.ErrInvalidState{Reason: "malformed token"}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", &errors.ErrInvalidState{Reason: "malformed iv"}
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", &errors.ErrInvalidState{Reason: "malformed ciphertext"}
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", &errors.ErrInvalidState{Reason: "cipher init failed"}
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", &errors.ErrInvalidState{Reason: "decryption failed"}
	}

	var p payload
	if err := json.Unmarshal(plain, &p); err != nil || p.UserID == "" {
		return "", &errors.ErrInvalidState{Reason: "decryption failed"}
	}

	if c.ttl > 0 {
		issued := time.Unix(p.IssuedAt, 0)
		if c.now().Sub(issued) > c.ttl {
			return "", &errors.ErrInvalidState{Reason: "token expired"}
		}
		if !c.consumed.consume(token, c.now()) {
			return "", &errors.ErrInvalidState{Reason: "token already used"}
		}
	}

	return p.UserID, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errInvalidPadding
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errInvalidPadding
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errInvalidPadding
		}
	}
	return data[:len(data)-padding], nil
}

var errInvalidPadding = &errors.ErrInvalidState{Reason: "invalid padding"}
