package pipeline

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := Wrap(ErrFormat, "parse", "region chain", "region 3 out of bounds", cause)

	if !errors.Is(err, ErrFormat) {
		t.Fatalf("expected format marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to survive wrapping, got %v", err)
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrIntegrity, "extract", "verify", "size mismatch", nil)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected integrity marker, got %v", err)
	}
	if errors.Is(err, ErrCodec) {
		t.Fatalf("unexpected codec classification: %v", err)
	}
}

func TestWrapNilMarkerDefaultsToIO(t *testing.T) {
	err := Wrap(nil, "extract", "write", "", errors.New("disk full"))
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected io fallback, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Wrap(ErrFormat, "parse", "header", "bad magic", nil), KindFormat},
		{Wrap(ErrIO, "materialize", "copy", "", errors.New("short write")), KindIO},
		{Wrap(ErrCodec, "extract", "decompress", "", errors.New("bad stream")), KindCodec},
		{Wrap(ErrIntegrity, "extract", "verify", "hash mismatch", nil), KindIntegrity},
		{fmt.Errorf("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestFatal(t *testing.T) {
	if !Fatal(Wrap(ErrFormat, "parse", "header", "", nil)) {
		t.Fatal("format errors should be fatal")
	}
	if Fatal(Wrap(ErrCodec, "extract", "decompress", "", nil)) {
		t.Fatal("codec errors should stay scoped to one file")
	}
}
