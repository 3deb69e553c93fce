package testsupport

import (
	"bytes"
	"crypto/aes"
	"encoding/binary"
	"testing"

	"ntpidump/internal/fileindex"
	"ntpidump/internal/ntpi"
)

// ContainerOption customizes a generated container.
type ContainerOption func(*containerBuilder)

type containerBuilder struct {
	major, minor, patch uint64
	metadataXML         []byte
	patchXML            []byte
	rawProgramXML       []byte
}

// WithVersion overrides the container version, for unsupported-version
// tests.
func WithVersion(major, minor, patch uint64) ContainerOption {
	return func(b *containerBuilder) {
		b.major, b.minor, b.patch = major, minor, patch
	}
}

// WithMetadata overrides the metadata manifest payload.
func WithMetadata(payload []byte) ContainerOption {
	return func(b *containerBuilder) {
		b.metadataXML = payload
	}
}

// BuildContainer assembles a complete container: header, the five
// encrypted manifest regions chained in canonical order, and the raw
// packed region. It returns the container bytes and the table
// descriptors of the embedded files.
func BuildContainer(t testing.TB, keyPool []byte, files []PackedFile, opts ...ContainerOption) ([]byte, []fileindex.Descriptor) {
	t.Helper()

	builder := &containerBuilder{
		major:         1,
		minor:         3,
		patch:         0,
		metadataXML:   []byte(`<metadata><program>firmware</program></metadata>`),
		patchXML:      []byte(`<patch/>`),
		rawProgramXML: []byte(`<rawProgram/>`),
	}
	for _, opt := range opts {
		opt(builder)
	}

	packed, descriptors := BuildPacked(t, keyPool, files...)

	keys, err := ntpi.KeysForVersion(1, 3, 0)
	if err != nil {
		t.Fatalf("load region keys: %v", err)
	}

	manifests := []struct {
		typ     ntpi.RegionType
		payload []byte
	}{
		{ntpi.RegionMetadata, builder.metadataXML},
		{ntpi.RegionPatch, builder.patchXML},
		{ntpi.RegionRawProgram, builder.rawProgramXML},
		{ntpi.RegionKeyMap, keyPool},
		{ntpi.RegionFileIndex, FileIndexXML(descriptors)},
	}

	// The chain links forward, so each region embeds the next one's
	// declaration. Build back to front, starting from the packed region.
	next := regionHeaderBytes(ntpi.RegionPacked, uint64(len(packed)))
	encrypted := make([][]byte, len(manifests))
	for i := len(manifests) - 1; i >= 0; i-- {
		m := manifests[i]
		plainLen := ntpi.RegionBlockHeaderSize + len(m.payload)
		encLen := plainLen + aes.BlockSize - plainLen%aes.BlockSize
		this := regionHeaderBytes(m.typ, uint64(encLen))

		plain := make([]byte, plainLen)
		copy(plain[0:16], this)
		copy(plain[16:32], next)
		binary.LittleEndian.PutUint64(plain[32:40], uint64(len(m.payload)))
		copy(plain[ntpi.RegionBlockHeaderSize:], m.payload)

		key, iv, err := keys.RegionKey(m.typ)
		if err != nil {
			t.Fatalf("region key for %s: %v", m.typ.Name(), err)
		}
		encrypted[i], err = ntpi.EncryptCBC(plain, key, iv)
		if err != nil {
			t.Fatalf("encrypt region %s: %v", m.typ.Name(), err)
		}
		if len(encrypted[i]) != encLen {
			t.Fatalf("region %s: encrypted %d bytes, declared %d", m.typ.Name(), len(encrypted[i]), encLen)
		}
		next = this
	}

	var container bytes.Buffer
	header := make([]byte, ntpi.HeaderSize)
	copy(header[0:4], "NTPI")
	binary.LittleEndian.PutUint64(header[8:16], builder.major)
	binary.LittleEndian.PutUint64(header[16:24], builder.minor)
	binary.LittleEndian.PutUint64(header[24:32], builder.patch)
	copy(header[32:48], next)
	container.Write(header)
	for _, region := range encrypted {
		container.Write(region)
	}
	container.Write(packed)

	return container.Bytes(), descriptors
}

func regionHeaderBytes(typ ntpi.RegionType, size uint64) []byte {
	buf := make([]byte, ntpi.RegionHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(typ))
	binary.LittleEndian.PutUint64(buf[8:16], size)
	return buf
}
