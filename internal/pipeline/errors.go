package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFormat marks a malformed header, region chain, or packed-file
	// table. Format errors abort the stage that detected them and are
	// never retried.
	ErrFormat = errors.New("format error")
	// ErrIO marks an unreadable source or unwritable destination.
	ErrIO = errors.New("io error")
	// ErrCodec marks a corrupt or unsupported compressed stream. Codec
	// errors are isolated to one packed file.
	ErrCodec = errors.New("codec error")
	// ErrIntegrity marks a decompressed length or checksum mismatch:
	// the stream decoded cleanly but the table lied about the result.
	ErrIntegrity = errors.New("integrity error")
)

// Kind names an error classification for reports and the run journal.
type Kind string

const (
	KindFormat    Kind = "format"
	KindIO        Kind = "io"
	KindCodec     Kind = "codec"
	KindIntegrity Kind = "integrity"
	KindUnknown   Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err against the sentinel markers.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrFormat):
		return KindFormat
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrCodec):
		return KindCodec
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}

// Fatal reports whether err must abort the whole run. Format and I/O
// failures during stage 1 leave nothing for stage 2 to decode; codec and
// integrity failures stay scoped to the packed file that produced them.
func Fatal(err error) bool {
	return errors.Is(err, ErrFormat) || errors.Is(err, ErrIO)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
