package packfile

import (
	"fmt"
	"io"

	"ntpidump/internal/codec"
	"ntpidump/internal/pipeline"
)

// BlockRef locates one block inside a file's packed byte range without
// holding its payload.
type BlockRef struct {
	// Offset is the block's position in the packed region.
	Offset int64
	// Index is the block's ordinal within the file, used for key selection.
	Index uint64
	// DecompressedOffset is where this block's output lands in the
	// reassembled file.
	DecompressedOffset int64
	// ProcessedSize is the decompressed byte count the block declares.
	ProcessedSize uint64
	// CompressSubtype is the codec tag the encode header advertises.
	CompressSubtype uint32
}

// ScanBlocks walks the block chain of one packed file, reading only the
// headers. It returns one ref per block in on-disk order. The chain must
// cover [start, end) exactly; a block running past end or trailing slack
// is a format error.
func ScanBlocks(ra io.ReaderAt, start, end int64) ([]BlockRef, error) {
	var refs []BlockRef
	var decompressed int64

	offset := start
	for offset < end {
		header, err := ReadBlockHeader(ra, offset, end)
		if err != nil {
			return nil, err
		}
		refs = append(refs, BlockRef{
			Offset:             offset,
			Index:              uint64(len(refs)),
			DecompressedOffset: decompressed,
			ProcessedSize:      header.ProcessedSize,
			CompressSubtype:    header.CompressSubtype,
		})
		decompressed += int64(header.ProcessedSize)
		offset += header.TotalSize()
	}
	if offset != end {
		return nil, pipeline.Wrap(pipeline.ErrFormat, "decode", "block chain",
			fmt.Sprintf("chain ends at offset %d, expected %d", offset, end), nil)
	}
	if len(refs) == 0 {
		return nil, pipeline.Wrap(pipeline.ErrFormat, "decode", "block chain", "no blocks in range", nil)
	}
	return refs, nil
}

// SeekableChain reports whether every block in the chain advertises a
// codec that decodes from a block boundary, making the chain safe to
// split into parallel segments.
func SeekableChain(refs []BlockRef) bool {
	for _, ref := range refs {
		if !codec.Codec(ref.CompressSubtype).Seekable() {
			return false
		}
	}
	return true
}

// TotalDecompressed sums the declared decompressed sizes of a scanned chain.
func TotalDecompressed(refs []BlockRef) int64 {
	var total int64
	for _, ref := range refs {
		total += int64(ref.ProcessedSize)
	}
	return total
}
