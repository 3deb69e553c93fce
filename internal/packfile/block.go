package packfile

import (
	"encoding/binary"
	"fmt"
	"io"

	"ntpidump/internal/codec"
	"ntpidump/internal/ntpi"
	"ntpidump/internal/pipeline"
)

const (
	blockMagic = "NTENCODE"

	// BlockHeaderSize is the byte length of the encode header that opens
	// every packed block.
	BlockHeaderSize = 112
	// decompressHeaderSize is the byte length of the header inside the
	// decrypted payload, in front of the compressed stream.
	decompressHeaderSize = 112
)

// BlockHeader is the encode header of one packed block.
type BlockHeader struct {
	PrimaryType     uint32
	CompressSubtype uint32
	EncryptSubtype  uint32
	// ProcessedSize is the decompressed byte count this block yields.
	ProcessedSize uint64
	// PayloadSize is the encrypted byte count following the header.
	PayloadSize uint64
	IV          [32]byte
	KeySize     uint32
	IVSize      uint32
}

// TotalSize is the full on-disk footprint of the block: header plus
// encrypted payload.
func (h BlockHeader) TotalSize() int64 {
	return BlockHeaderSize + int64(h.PayloadSize)
}

// ParseBlockHeader decodes the 112-byte encode header.
func ParseBlockHeader(data []byte) (BlockHeader, error) {
	if len(data) < BlockHeaderSize {
		return BlockHeader{}, pipeline.Wrap(pipeline.ErrFormat, "decode", "block header",
			fmt.Sprintf("need %d bytes, have %d", BlockHeaderSize, len(data)), nil)
	}
	if string(data[0:8]) != blockMagic {
		return BlockHeader{}, pipeline.Wrap(pipeline.ErrFormat, "decode", "block header",
			fmt.Sprintf("bad magic %q", data[0:8]), nil)
	}
	header := BlockHeader{
		PrimaryType:     binary.LittleEndian.Uint32(data[8:12]),
		CompressSubtype: binary.LittleEndian.Uint32(data[12:16]),
		EncryptSubtype:  binary.LittleEndian.Uint32(data[16:20]),
		ProcessedSize:   binary.LittleEndian.Uint64(data[24:32]),
		PayloadSize:     binary.LittleEndian.Uint64(data[32:40]),
		KeySize:         binary.LittleEndian.Uint32(data[104:108]),
		IVSize:          binary.LittleEndian.Uint32(data[108:112]),
	}
	copy(header.IV[:], data[72:104])
	return header, nil
}

// ReadBlockHeader reads the encode header at off, rejecting blocks whose
// declared payload would run past end.
func ReadBlockHeader(ra io.ReaderAt, off, end int64) (BlockHeader, error) {
	if off+BlockHeaderSize > end {
		return BlockHeader{}, pipeline.Wrap(pipeline.ErrFormat, "decode", "block header",
			fmt.Sprintf("header at offset %d runs past region end %d", off, end), nil)
	}
	buf := make([]byte, BlockHeaderSize)
	if _, err := ra.ReadAt(buf, off); err != nil {
		return BlockHeader{}, pipeline.Wrap(pipeline.ErrIO, "decode", "read block header", "", err)
	}
	header, err := ParseBlockHeader(buf)
	if err != nil {
		return BlockHeader{}, err
	}
	// Unsigned compare: a huge declared size must not wrap the bounds check.
	if header.PayloadSize > uint64(end-off-BlockHeaderSize) {
		return BlockHeader{}, pipeline.Wrap(pipeline.ErrFormat, "decode", "block header",
			fmt.Sprintf("block at offset %d declares %d payload bytes past region end %d",
				off, header.PayloadSize, end), nil)
	}
	return header, nil
}

// DecodeBlock decrypts and decompresses the block at off using key,
// returning the decompressed bytes and the offset of the next block.
func DecodeBlock(ra io.ReaderAt, off, end int64, key []byte) ([]byte, int64, error) {
	header, err := ReadBlockHeader(ra, off, end)
	if err != nil {
		return nil, 0, err
	}

	encrypted := make([]byte, header.PayloadSize)
	if _, err := ra.ReadAt(encrypted, off+BlockHeaderSize); err != nil {
		return nil, 0, pipeline.Wrap(pipeline.ErrIO, "decode", "read block payload", "", err)
	}

	decrypted, err := ntpi.DecryptCBC(encrypted, key, header.IV[:16])
	if err != nil {
		return nil, 0, pipeline.Wrap(pipeline.ErrCodec, "decode", "decrypt block",
			fmt.Sprintf("offset %d", off), err)
	}
	if len(decrypted) < decompressHeaderSize {
		return nil, 0, pipeline.Wrap(pipeline.ErrCodec, "decode", "decompress header",
			fmt.Sprintf("decrypted block at offset %d is %d bytes", off, len(decrypted)), nil)
	}
	if string(decrypted[0:8]) != blockMagic {
		return nil, 0, pipeline.Wrap(pipeline.ErrCodec, "decode", "decompress header",
			fmt.Sprintf("bad magic %q at offset %d", decrypted[0:8], off), nil)
	}

	tag, err := codec.FromSubtype(binary.LittleEndian.Uint32(decrypted[12:16]))
	if err != nil {
		return nil, 0, err
	}
	out, err := codec.Decompress(tag, decrypted[decompressHeaderSize:])
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(out)) != header.ProcessedSize {
		return nil, 0, pipeline.Wrap(pipeline.ErrIntegrity, "decode", "block size",
			fmt.Sprintf("block at offset %d declared %d decompressed bytes, got %d",
				off, header.ProcessedSize, len(out)), nil)
	}

	return out, off + header.TotalSize(), nil
}
