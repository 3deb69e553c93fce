package ntpi

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// DecryptCBC decrypts data in place semantics-wise (a fresh buffer is
// returned) using AES-CBC, stripping PKCS#7 padding when the final block
// carries a valid pad. The packaging tool pads some payloads and not
// others, so an invalid pad is not an error.
func DecryptCBC(data, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(iv) < aes.BlockSize {
		return nil, fmt.Errorf("iv too short: %d bytes", len(iv))
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}

	plaintext := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv[:aes.BlockSize]).CryptBlocks(plaintext, data)
	return stripPKCS7(plaintext), nil
}

// EncryptCBC is the inverse of DecryptCBC with PKCS#7 padding always
// applied. It exists for test fixtures; the extractor itself never writes
// containers.
func EncryptCBC(data, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(iv) < aes.BlockSize {
		return nil, fmt.Errorf("iv too short: %d bytes", len(iv))
	}

	pad := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+pad)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:aes.BlockSize]).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func stripPKCS7(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return data
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return data
		}
	}
	return data[:len(data)-pad]
}
