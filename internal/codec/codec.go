package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"

	"ntpidump/internal/pipeline"
)

// Codec identifies the compression algorithm of one packed block. Values
// follow the compress-subtype field of the block header; changing them
// breaks container compatibility.
type Codec uint32

const (
	// None is a passthrough for blocks stored uncompressed.
	None Codec = 0
	// LZMA2 is a raw LZMA2 chunk stream, the codec the NTPI packaging
	// tool emits.
	LZMA2 Codec = 1
	// Zstd is reserved for containers repacked with zstd.
	Zstd Codec = 2
)

// String returns the human-readable codec name.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZMA2:
		return "lzma2"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(c))
	}
}

// FromSubtype maps a block header compress-subtype to a codec tag. An
// unknown subtype is a codec error scoped to the block that carried it.
func FromSubtype(subtype uint32) (Codec, error) {
	switch Codec(subtype) {
	case None, LZMA2, Zstd:
		return Codec(subtype), nil
	default:
		return 0, pipeline.Wrap(pipeline.ErrCodec, "decompress", "codec lookup",
			fmt.Sprintf("unsupported compress subtype %d", subtype), nil)
	}
}

// Seekable reports whether streams of this codec can be decoded from an
// arbitrary block boundary. Every NTPI codec applies per block, so blocks
// are the codec-safe segmentation boundary; a hypothetical whole-payload
// stream codec would return false and force single-worker streaming.
func (c Codec) Seekable() bool {
	switch c {
	case None, LZMA2, Zstd:
		return true
	default:
		return false
	}
}

// zstdDecoder is shared across calls; zstd.Decoder is safe for concurrent
// use with DecodeAll.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Decompress is a pure function from (codec, compressed bytes) to
// decompressed bytes. Corrupt streams and unsupported tags yield codec
// errors; the caller owns declared-size and checksum verification.
func Decompress(c Codec, data []byte) ([]byte, error) {
	switch c {
	case None:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case LZMA2:
		reader, err := lzma.NewReader2(bytes.NewReader(data))
		if err != nil {
			return nil, pipeline.Wrap(pipeline.ErrCodec, "decompress", "lzma2", "open stream", err)
		}
		var out bytes.Buffer
		if _, err := io.Copy(&out, reader); err != nil {
			return nil, pipeline.Wrap(pipeline.ErrCodec, "decompress", "lzma2", "", err)
		}
		return out.Bytes(), nil

	case Zstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, pipeline.Wrap(pipeline.ErrCodec, "decompress", "zstd", "", err)
		}
		return out, nil

	default:
		return nil, pipeline.Wrap(pipeline.ErrCodec, "decompress", "codec lookup",
			fmt.Sprintf("unsupported codec %s", c), nil)
	}
}

// Compress is the inverse of Decompress. The extractor has no write path;
// this exists so tests can build real packed streams.
func Compress(c Codec, data []byte) ([]byte, error) {
	switch c {
	case None:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case LZMA2:
		var buf bytes.Buffer
		writer, err := lzma.NewWriter2(&buf)
		if err != nil {
			return nil, fmt.Errorf("lzma2 compress: open stream: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("lzma2 compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("lzma2 compress: flush: %w", err)
		}
		return buf.Bytes(), nil

	case Zstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd compress: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil

	default:
		return nil, fmt.Errorf("unsupported codec %s", c)
	}
}
