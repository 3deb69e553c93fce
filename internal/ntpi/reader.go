package ntpi

import (
	"fmt"
	"io"

	"ntpidump/internal/pipeline"
)

// Region is one entry of the walked region chain. Manifest regions carry
// their decrypted payload; the packed region is never decrypted here and is
// described by its raw span only, so the container does not have to fit in
// memory.
type Region struct {
	Header RegionHeader
	// Offset is the region payload's byte offset inside the container.
	Offset int64
	// Payload is the decrypted, unwrapped payload for every region except
	// the packed one, for which it is nil.
	Payload []byte
}

// ReadHeader reads and validates the container header.
func ReadHeader(ra io.ReaderAt, size int64) (Header, error) {
	if size < HeaderSize {
		return Header{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "header",
			fmt.Sprintf("container is %d bytes, need at least %d", size, HeaderSize), nil)
	}
	buf := make([]byte, HeaderSize)
	if _, err := ra.ReadAt(buf, 0); err != nil {
		return Header{}, pipeline.Wrap(pipeline.ErrIO, "parse", "read header", "", err)
	}
	return ParseHeader(buf)
}

// WalkRegions walks the region chain from the container header, validating
// every declared range against the container size before reading it. The
// walk decrypts each manifest region with the version's key set to recover
// the next link; the packed region terminates the chain and stays raw.
//
// Duplicate region types and out-of-bounds declarations are format errors
// that abort the walk; a corrupt chain cannot be trusted for any region.
func WalkRegions(ra io.ReaderAt, size int64) (Header, []Region, error) {
	header, err := ReadHeader(ra, size)
	if err != nil {
		return Header{}, nil, err
	}

	keys, err := KeysForVersion(header.Major, header.Minor, header.Patch)
	if err != nil {
		return Header{}, nil, err
	}

	var regions []Region
	seen := make(map[RegionType]bool)
	offset := int64(HeaderSize)
	current := header.FirstRegion

	for index := 0; current.Size > 0; index++ {
		if seen[current.Type] {
			return Header{}, nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "region chain",
				fmt.Sprintf("duplicate region %s at index %d", current.Type.Name(), index), nil)
		}
		seen[current.Type] = true

		if current.Size > uint64(size) || offset > size-int64(current.Size) {
			return Header{}, nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "region chain",
				fmt.Sprintf("region %s at index %d exceeds container bounds (offset %d, size %d, container %d)",
					current.Type.Name(), index, offset, current.Size, size), nil)
		}

		if current.Type == RegionPacked {
			regions = append(regions, Region{Header: current, Offset: offset})
			break
		}

		payload, next, err := decodeManifestRegion(ra, offset, current, keys, index)
		if err != nil {
			return Header{}, nil, err
		}
		regions = append(regions, Region{Header: current, Offset: offset, Payload: payload})

		offset += int64(current.Size)
		current = next
	}

	return header, regions, nil
}

func decodeManifestRegion(ra io.ReaderAt, offset int64, header RegionHeader, keys *KeySet, index int) ([]byte, RegionHeader, error) {
	raw := make([]byte, header.Size)
	if _, err := ra.ReadAt(raw, offset); err != nil {
		return nil, RegionHeader{}, pipeline.Wrap(pipeline.ErrIO, "parse", "read region",
			header.Type.Name(), err)
	}

	key, iv, err := keys.RegionKey(header.Type)
	if err != nil {
		return nil, RegionHeader{}, err
	}
	decrypted, err := DecryptCBC(raw, key, iv)
	if err != nil {
		return nil, RegionHeader{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "decrypt region",
			header.Type.Name(), err)
	}

	blockHeader, err := ParseRegionBlockHeader(decrypted)
	if err != nil {
		return nil, RegionHeader{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "region block header",
			fmt.Sprintf("region %s at index %d", header.Type.Name(), index), err)
	}
	if blockHeader.RealSize > uint64(len(decrypted)-RegionBlockHeaderSize) {
		return nil, RegionHeader{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "region payload",
			fmt.Sprintf("region %s declares %d payload bytes, only %d available",
				header.Type.Name(), blockHeader.RealSize, len(decrypted)-RegionBlockHeaderSize), nil)
	}

	payload := decrypted[RegionBlockHeaderSize : RegionBlockHeaderSize+int(blockHeader.RealSize)]
	return payload, blockHeader.Next, nil
}
