// Package crypto implements the envelope wrapped around every outbound
// and inbound binary frame: AES-CBC encryption under a random IV,
// sealed with an HMAC-SHA256 tag computed over the ciphertext.
//
// This is deliberately built on the standard library rather than a
// third-party AEAD: the wire format is fixed by the server (HMAC-SHA256
// over raw CBC ciphertext with the IV prepended inside it, not a
// combined AEAD construction), so no general-purpose authenticated
// encryption package can produce a compatible frame.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required length, in bytes, of both the encryption and
// MAC keys.
const KeySize = 32

const macSize = sha256.Size

// ErrBadMac is returned by Open when the HMAC tag does not match.
var ErrBadMac = errors.New("crypto: bad mac")

// ErrBadPadding is returned by Open when PKCS#7 padding is invalid.
var ErrBadPadding = errors.New("crypto: bad padding")

// Seal encrypts plaintext under encKey with a random IV and returns
// hmac(ciphertext) || ciphertext, where ciphertext is AES-CBC-256 with
// PKCS#7 padding and the IV prepended inside it.
func Seal(plaintext, encKey, macKey []byte) ([]byte, error) {
	if len(encKey) != KeySize || len(macKey) != KeySize {
		return nil, fmt.Errorf("crypto: keys must be %d bytes", KeySize)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv := make([]byte, block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("crypto: random iv: %w", err)
	}

	ciphertext := make([]byte, len(iv)+len(padded))
	copy(ciphertext, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext[len(iv):], padded)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	out := make([]byte, 0, len(tag)+len(ciphertext))
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open verifies and decrypts a frame produced by Seal.
func Open(frame, encKey, macKey []byte) ([]byte, error) {
	if len(encKey) != KeySize || len(macKey) != KeySize {
		return nil, fmt.Errorf("crypto: keys must be %d bytes", KeySize)
	}
	if len(frame) < macSize {
		return nil, fmt.Errorf("crypto: frame shorter than mac")
	}

	tag, ciphertext := frame[:macSize], frame[macSize:]
	mac := hmac.New(sha256.New, macKey)
	mac.Write(ciphertext)
	if !hmac.Equal(tag, mac.Sum(nil)) {
		return nil, ErrBadMac
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	blockSize := block.BlockSize()
	if len(ciphertext) < blockSize || len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext is not a multiple of the block size")
	}

	iv, body := ciphertext[:blockSize], ciphertext[blockSize:]
	if len(body) == 0 {
		return nil, ErrBadPadding
	}
	plaintext := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, body)

	return pkcs7Unpad(plaintext, blockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-padLen], nil
}
