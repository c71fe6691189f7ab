package frame

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"hash/crc32"
	"io"

	"boxdb/pkg/boxerr"
)

// Crypto wraps a 32-byte AES-256 key, providing CBC encrypt/decrypt with a
// random IV, and a KeyCRC used to seed frame checksums so that a frame
// encrypted under a different key is rejected at CRC time rather than at
// decrypt time.
type Crypto struct {
	key    []byte
	KeyCRC uint32
}

// NewCrypto validates the key length and precomputes KeyCRC.
func NewCrypto(key []byte) (*Crypto, error) {
	if len(key) != 32 {
		return nil, boxerr.Wrap(boxerr.ErrUnsupportedOperation, "encryption key must be 32 bytes")
	}
	return &Crypto{key: key, KeyCRC: crc32.ChecksumIEEE(key)}, nil
}

// Encrypt prefixes a random 16-byte IV to the AES-256-CBC ciphertext.
// Plaintext is PKCS#7 padded to the block size.
func (c *Crypto) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, boxerr.WrapIO(err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, boxerr.WrapIO(err)
	}

	ciphertext := make([]byte, len(iv)+len(padded))
	copy(ciphertext, iv)

	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext[len(iv):], padded)

	return ciphertext, nil
}

// Decrypt strips the leading IV and reverses Encrypt. A corrupt key or
// truncated ciphertext surfaces as CorruptFrame, per the specification's
// error design (a decrypt failure is a symptom of CRC-level corruption,
// not a distinct error family).
func (c *Crypto) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, boxerr.WrapIO(err)
	}

	if len(ciphertext) < aes.BlockSize || (len(ciphertext)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "ciphertext length invalid")
	}

	iv := ciphertext[:aes.BlockSize]
	body := ciphertext[aes.BlockSize:]
	if len(body) == 0 {
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "empty ciphertext body")
	}

	plaintext := make([]byte, len(body))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, body)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "empty padded buffer")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
