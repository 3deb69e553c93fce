package fileindex

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"ntpidump/internal/pipeline"
)

// Descriptor is one entry of the packed-file table: where a file's block
// chain lives in the packed region and what the reassembled file must
// look like.
type Descriptor struct {
	// Path is the normalized relative output path.
	Path string
	// Offset is the start of the file's first block in the packed region.
	Offset int64
	// Length is the packed byte count, headers included.
	Length int64
	// OriginalLength is the decompressed byte count.
	OriginalLength int64
	// SHA256 is the lowercase hex digest of the decompressed file, empty
	// when the table omits it.
	SHA256 string
	// KeyIndex is the base key map index of the file's first block.
	KeyIndex uint64
}

// End returns the exclusive end of the descriptor's packed byte range.
func (d Descriptor) End() int64 {
	return d.Offset + d.Length
}

// rawFile mirrors one <file> element of FileIndex.xml.
type rawFile struct {
	Name           string `xml:"Name,attr"`
	Offset         int64  `xml:"Offset,attr"`
	Length         int64  `xml:"Length,attr"`
	OriginalLength int64  `xml:"OriginalLength,attr"`
	SHA256         string `xml:"FileSha256Hash,attr"`
	KeyIndex       uint64 `xml:"KeyIndex,attr"`
}

// Decode parses FileIndex.xml and validates the whole table against the
// packed region size. Any malformed entry fails the decode; the table is
// the map for everything downstream and a partially trusted map is worse
// than none. Entries keep their table order.
func Decode(r io.Reader, packedSize int64) ([]Descriptor, error) {
	decoder := xml.NewDecoder(r)

	var descriptors []Descriptor
	seen := make(map[string]struct{})
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "file index", "malformed xml", err)
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "file" {
			continue
		}

		var raw rawFile
		if err := decoder.DecodeElement(&raw, &start); err != nil {
			return nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "file index",
				fmt.Sprintf("entry %d", len(descriptors)), err)
		}
		desc, err := validate(raw, packedSize)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[desc.Path]; dup {
			return nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "file index",
				fmt.Sprintf("duplicate path %q", desc.Path), nil)
		}
		seen[desc.Path] = struct{}{}
		descriptors = append(descriptors, desc)
	}

	if len(descriptors) == 0 {
		return nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "file index", "no file entries", nil)
	}
	return descriptors, nil
}

func validate(raw rawFile, packedSize int64) (Descriptor, error) {
	name, err := normalizePath(raw.Name)
	if err != nil {
		return Descriptor{}, err
	}
	if raw.Offset < 0 || raw.Length <= 0 || raw.OriginalLength < 0 {
		return Descriptor{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "file index",
			fmt.Sprintf("%s: offset %d length %d original %d", name, raw.Offset, raw.Length, raw.OriginalLength), nil)
	}
	if raw.Offset > packedSize-raw.Length {
		return Descriptor{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "file index",
			fmt.Sprintf("%s: range [%d, %d) exceeds packed region size %d",
				name, raw.Offset, raw.Offset+raw.Length, packedSize), nil)
	}

	digest := strings.ToLower(strings.TrimSpace(raw.SHA256))
	if digest != "" && len(digest) != 64 {
		return Descriptor{}, pipeline.Wrap(pipeline.ErrFormat, "parse", "file index",
			fmt.Sprintf("%s: digest %q is not sha-256 hex", name, raw.SHA256), nil)
	}

	return Descriptor{
		Path:           name,
		Offset:         raw.Offset,
		Length:         raw.Length,
		OriginalLength: raw.OriginalLength,
		SHA256:         digest,
		KeyIndex:       raw.KeyIndex,
	}, nil
}

// normalizePath maps a table name to a safe slash-separated relative path.
// The packaging tool writes Windows separators.
func normalizePath(name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if cleaned == "" || cleaned == "." || cleaned == ".." ||
		strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "../") {
		return "", pipeline.Wrap(pipeline.ErrFormat, "parse", "file index",
			fmt.Sprintf("unsafe entry name %q", name), nil)
	}
	if strings.Contains(cleaned, ":") {
		return "", pipeline.Wrap(pipeline.ErrFormat, "parse", "file index",
			fmt.Sprintf("unsafe entry name %q", name), nil)
	}
	return cleaned, nil
}

// TotalOriginal sums the decompressed sizes of the table, for progress
// reporting.
func TotalOriginal(descriptors []Descriptor) int64 {
	var total int64
	for _, d := range descriptors {
		total += d.OriginalLength
	}
	return total
}
