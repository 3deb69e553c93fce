package codec

import (
	"bytes"
	"errors"
	"testing"

	"ntpidump/internal/pipeline"
)

func samplePayload() []byte {
	// Repetitive data so both codecs actually shrink it.
	return bytes.Repeat([]byte("ntpi region payload "), 256)
}

func TestRoundTripLZMA2(t *testing.T) {
	payload := samplePayload()
	compressed, err := Compress(LZMA2, payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) >= len(payload) {
		t.Fatalf("lzma2 did not compress: %d >= %d", len(compressed), len(payload))
	}

	got, err := Decompress(LZMA2, compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("lzma2 round trip mismatch")
	}
}

func TestRoundTripZstd(t *testing.T) {
	payload := samplePayload()
	compressed, err := Compress(Zstd, payload)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decompress(Zstd, compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("zstd round trip mismatch")
	}
}

func TestNoneCopies(t *testing.T) {
	payload := []byte{1, 2, 3}
	got, err := Decompress(None, payload)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("passthrough mismatch")
	}
	got[0] = 9
	if payload[0] == 9 {
		t.Fatal("passthrough must not alias the input")
	}
}

func TestDecompressCorruptStream(t *testing.T) {
	_, err := Decompress(Zstd, []byte("definitely not zstd"))
	if err == nil {
		t.Fatal("expected codec error")
	}
	if !errors.Is(err, pipeline.ErrCodec) {
		t.Fatalf("expected codec classification, got %v", err)
	}
}

func TestFromSubtype(t *testing.T) {
	if c, err := FromSubtype(1); err != nil || c != LZMA2 {
		t.Fatalf("subtype 1: got %v, %v", c, err)
	}
	if _, err := FromSubtype(77); !errors.Is(err, pipeline.ErrCodec) {
		t.Fatalf("subtype 77 should be a codec error, got %v", err)
	}
}

func TestCodecString(t *testing.T) {
	if LZMA2.String() != "lzma2" || Codec(9).String() != "unknown(9)" {
		t.Fatalf("unexpected names: %s / %s", LZMA2, Codec(9))
	}
}
