package packfile

import (
	"fmt"

	"ntpidump/internal/pipeline"
)

// KeyLength is the AES-256 key size the key map is divided into.
const KeyLength = 32

// KeyMap is the decrypted key map region: a flat pool of 32-byte AES keys.
// Block N of a file with base key index K uses key (K+N) mod pool size.
type KeyMap struct {
	data []byte
}

// NewKeyMap wraps the raw key map payload. The payload must be a non-empty
// multiple of the key length.
func NewKeyMap(data []byte) (*KeyMap, error) {
	if len(data) == 0 {
		return nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "key map", "empty key map region", nil)
	}
	if len(data)%KeyLength != 0 {
		return nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "key map",
			fmt.Sprintf("key map length %d is not a multiple of %d", len(data), KeyLength), nil)
	}
	return &KeyMap{data: data}, nil
}

// Len returns the number of keys in the pool.
func (m *KeyMap) Len() int {
	return len(m.data) / KeyLength
}

// KeyAt returns the 32-byte key at index, wrapping modulo the pool size.
// The returned slice aliases the pool and must not be mutated.
func (m *KeyMap) KeyAt(index uint64) []byte {
	slot := (index % uint64(m.Len())) * KeyLength
	return m.data[slot : slot+KeyLength]
}
