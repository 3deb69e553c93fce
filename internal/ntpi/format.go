package ntpi

import (
	"encoding/binary"
	"fmt"

	"ntpidump/internal/pipeline"
)

// RegionType identifies one logical payload inside the container.
type RegionType uint64

const (
	RegionMetadata   RegionType = 1
	RegionPatch      RegionType = 2
	RegionRawProgram RegionType = 3
	RegionKeyMap     RegionType = 4
	RegionFileIndex  RegionType = 5
	RegionPacked     RegionType = 6
)

// Name returns the conventional artifact name for a region type.
func (t RegionType) Name() string {
	switch t {
	case RegionMetadata:
		return "Metadata"
	case RegionPatch:
		return "Patch"
	case RegionRawProgram:
		return "RawProgram"
	case RegionKeyMap:
		return "KeyMap"
	case RegionFileIndex:
		return "FileIndex"
	case RegionPacked:
		return "Packed"
	default:
		return fmt.Sprintf("Unknown%d", uint64(t))
	}
}

// ArtifactName returns the file name a region is materialized under.
// Manifest regions decode to XML, the key map and the packed region are
// binary.
func (t RegionType) ArtifactName() string {
	switch t {
	case RegionKeyMap:
		return "KeyMap.bin"
	case RegionPacked:
		return "packed.bin"
	default:
		return t.Name() + ".xml"
	}
}

const (
	headerMagic = "NTPI"

	// HeaderSize is the byte length of the container header.
	HeaderSize = 48
	// RegionHeaderSize is the byte length of one region declaration.
	RegionHeaderSize = 16
	// RegionBlockHeaderSize is the byte length of the block header that
	// opens every decrypted region payload.
	RegionBlockHeaderSize = 40
)

// RegionHeader declares one region: its type and payload size in bytes.
type RegionHeader struct {
	Type RegionType
	Size uint64
}

func parseRegionHeader(data []byte) RegionHeader {
	return RegionHeader{
		Type: RegionType(binary.LittleEndian.Uint64(data[0:8])),
		Size: binary.LittleEndian.Uint64(data[8:16]),
	}
}

// Header is the 48-byte container header.
type Header struct {
	Major, Minor, Patch uint64
	FirstRegion         RegionHeader
}

// Version renders the container version as "major.minor.patch".
func (h Header) Version() string {
	return fmt.Sprintf("%d.%d.%d", h.Major, h.Minor, h.Patch)
}

// ParseHeader decodes and validates the container header. A short buffer or
// wrong magic is a format error; the header must be fully readable before
// any region is touched.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "header",
			fmt.Sprintf("container too small for header: %d bytes", len(data)), nil)
	}
	if string(data[0:4]) != headerMagic {
		return Header{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "header",
			fmt.Sprintf("bad magic %q", data[0:4]), nil)
	}
	return Header{
		Major:       binary.LittleEndian.Uint64(data[8:16]),
		Minor:       binary.LittleEndian.Uint64(data[16:24]),
		Patch:       binary.LittleEndian.Uint64(data[24:32]),
		FirstRegion: parseRegionHeader(data[32:48]),
	}, nil
}

// RegionBlockHeader opens every decrypted region payload: it repeats the
// region's own declaration, names the next region in the chain, and gives
// the real payload length after the header.
type RegionBlockHeader struct {
	This     RegionHeader
	Next     RegionHeader
	RealSize uint64
}

// ParseRegionBlockHeader decodes the 40-byte block header.
func ParseRegionBlockHeader(data []byte) (RegionBlockHeader, error) {
	if len(data) < RegionBlockHeaderSize {
		return RegionBlockHeader{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "region block header",
			fmt.Sprintf("payload too small: %d bytes", len(data)), nil)
	}
	return RegionBlockHeader{
		This:     parseRegionHeader(data[0:16]),
		Next:     parseRegionHeader(data[16:32]),
		RealSize: binary.LittleEndian.Uint64(data[32:40]),
	}, nil
}
