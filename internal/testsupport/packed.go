package testsupport

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"testing"

	"ntpidump/internal/codec"
	"ntpidump/internal/fileindex"
	"ntpidump/internal/ntpi"
)

const (
	blockMagic      = "NTENCODE"
	blockHeaderSize = 112
)

// KeyPool builds a deterministic key map payload with n 32-byte keys.
func KeyPool(n int) []byte {
	pool := make([]byte, n*32)
	for i := range pool {
		pool[i] = byte((i*7 + i/32) % 251)
	}
	return pool
}

// PackedFile describes one file to embed in a synthetic packed region.
type PackedFile struct {
	Name    string
	Content []byte
	// BlockSize is the plaintext byte count per block; zero packs the
	// whole file into one block.
	BlockSize int
	// KeyIndex is the base key map index of the first block.
	KeyIndex uint64
	// OmitDigest leaves the table entry's checksum empty.
	OmitDigest bool
}

// EncodeBlock packs one plaintext chunk into a complete NTENCODE block:
// compress, wrap in the decompress header, encrypt, wrap in the encode
// header.
func EncodeBlock(t testing.TB, plaintext, key []byte) []byte {
	t.Helper()

	compressed, err := codec.Compress(codec.LZMA2, plaintext)
	if err != nil {
		t.Fatalf("compress block: %v", err)
	}

	inner := make([]byte, blockHeaderSize+len(compressed))
	copy(inner[0:8], blockMagic)
	binary.LittleEndian.PutUint32(inner[12:16], uint32(codec.LZMA2))
	binary.LittleEndian.PutUint64(inner[24:32], uint64(len(plaintext)))
	copy(inner[blockHeaderSize:], compressed)

	iv := make([]byte, 32)
	copy(iv, key[:16])
	encrypted, err := ntpi.EncryptCBC(inner, key, iv[:16])
	if err != nil {
		t.Fatalf("encrypt block: %v", err)
	}

	block := make([]byte, blockHeaderSize+len(encrypted))
	copy(block[0:8], blockMagic)
	binary.LittleEndian.PutUint32(block[12:16], uint32(codec.LZMA2))
	binary.LittleEndian.PutUint64(block[24:32], uint64(len(plaintext)))
	binary.LittleEndian.PutUint64(block[32:40], uint64(len(encrypted)))
	copy(block[72:104], iv)
	binary.LittleEndian.PutUint32(block[104:108], 32)
	binary.LittleEndian.PutUint32(block[108:112], 16)
	copy(block[blockHeaderSize:], encrypted)
	return block
}

// BuildPacked assembles files into one packed region and returns the raw
// bytes plus matching table descriptors, offsets relative to the region
// start.
func BuildPacked(t testing.TB, keyPool []byte, files ...PackedFile) ([]byte, []fileindex.Descriptor) {
	t.Helper()

	if len(keyPool) == 0 || len(keyPool)%32 != 0 {
		t.Fatalf("key pool length %d is not a multiple of 32", len(keyPool))
	}
	keyAt := func(index uint64) []byte {
		slot := (index % uint64(len(keyPool)/32)) * 32
		return keyPool[slot : slot+32]
	}

	var region bytes.Buffer
	var descriptors []fileindex.Descriptor
	for _, file := range files {
		blockSize := file.BlockSize
		if blockSize <= 0 {
			blockSize = len(file.Content)
			if blockSize == 0 {
				blockSize = 1
			}
		}

		start := int64(region.Len())
		index := file.KeyIndex
		for off := 0; off == 0 || off < len(file.Content); off += blockSize {
			chunkEnd := off + blockSize
			if chunkEnd > len(file.Content) {
				chunkEnd = len(file.Content)
			}
			region.Write(EncodeBlock(t, file.Content[off:chunkEnd], keyAt(index)))
			index++
		}

		digest := ""
		if !file.OmitDigest {
			sum := sha256.Sum256(file.Content)
			digest = hex.EncodeToString(sum[:])
		}
		descriptors = append(descriptors, fileindex.Descriptor{
			Path:           file.Name,
			Offset:         start,
			Length:         int64(region.Len()) - start,
			OriginalLength: int64(len(file.Content)),
			SHA256:         digest,
			KeyIndex:       file.KeyIndex,
		})
	}
	return region.Bytes(), descriptors
}

// FileIndexXML renders descriptors in the table's wire form.
func FileIndexXML(descriptors []fileindex.Descriptor) []byte {
	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<fileIndex>\n")
	for _, d := range descriptors {
		fmt.Fprintf(&buf,
			"  <file Name=%q Offset=\"%d\" Length=\"%d\" OriginalLength=\"%d\" FileSha256Hash=%q KeyIndex=\"%d\"/>\n",
			d.Path, d.Offset, d.Length, d.OriginalLength, d.SHA256, d.KeyIndex)
	}
	buf.WriteString("</fileIndex>\n")
	return buf.Bytes()
}
