package proxycrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mkuchak/get-youtube-transcription/internal/transcript"
)

// Parameters must match the companion client-side encryption routine
// exactly, or tokens produced there will not decrypt here.
const (
	salt       = "cloudflare-workers-salt"
	iterations = 100_000
	keyLen     = 32
	nonceSize  = 12
)

// Decoder turns an encrypted proxy token into a usable upstream proxy
// URL. The secret is fixed at construction and never changes afterwards.
type Decoder struct {
	secret string
}

func NewDecoder(secret string) *Decoder {
	return &Decoder{secret: strings.TrimSpace(secret)}
}

// Available reports whether a decryption secret is configured.
func (d *Decoder) Available() bool {
	return d.secret != ""
}

// Decode decrypts a proxy token and parses it as a proxy URL. Any
// decryption failure returns transcript.ErrInvalidProxyCiphertext with
// no indication of which step failed.
func (d *Decoder) Decode(ciphertext string) (*url.URL, error) {
	if !d.Available() {
		return nil, transcript.ErrProxyDecryptionUnavailable
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil || len(raw) <= nonceSize {
		return nil, transcript.ErrInvalidProxyCiphertext
	}

	gcm, err := newAEAD(d.secret)
	if err != nil {
		return nil, transcript.ErrInvalidProxyCiphertext
	}

	plaintext, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, transcript.ErrInvalidProxyCiphertext
	}

	return parseProxyURL(string(plaintext))
}

// Encrypt is the companion routine to Decode. It exists so clients (and
// the round-trip tests) can produce tokens under the same contract:
// random 12-byte nonce prepended to the AES-GCM ciphertext, base64.
func Encrypt(plaintext, secret string) (string, error) {
	if strings.TrimSpace(plaintext) == "" {
		return "", errors.New("plaintext must not be empty")
	}
	gcm, err := newAEAD(strings.TrimSpace(secret))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func newAEAD(secret string) (cipher.AEAD, error) {
	if secret == "" {
		return nil, errors.New("secret must not be empty")
	}
	key := pbkdf2.Key([]byte(secret), []byte(salt), iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// parseProxyURL validates the decrypted plaintext only structurally: it
// must be non-empty and carry a scheme. Everything else is passed
// through to the transport untouched.
func parseProxyURL(plaintext string) (*url.URL, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return nil, transcript.ErrInvalidProxyCiphertext
	}
	u, err := url.Parse(plaintext)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, transcript.ErrInvalidProxyCiphertext
	}
	return u, nil
}
