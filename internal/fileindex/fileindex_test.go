package fileindex

import (
	"errors"
	"strings"
	"testing"

	"ntpidump/internal/pipeline"
)

// sampleDigest is 64 hex characters with mixed case.
var sampleDigest = strings.Repeat("AB12", 16)

var sampleIndex = `<?xml version="1.0" encoding="utf-8"?>
<fileIndex>
  <file Name="boot\image.bin" Offset="0" Length="512" OriginalLength="2048"
        FileSha256Hash="` + sampleDigest + `" KeyIndex="0"/>
  <file Name="modem.mbn" Offset="512" Length="256" OriginalLength="700"
        FileSha256Hash="" KeyIndex="3"/>
</fileIndex>`

func TestDecode(t *testing.T) {
	descriptors, err := Decode(strings.NewReader(sampleIndex), 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(descriptors))
	}

	first := descriptors[0]
	if first.Path != "boot/image.bin" {
		t.Fatalf("path = %q, want backslashes normalized", first.Path)
	}
	if first.Offset != 0 || first.Length != 512 || first.OriginalLength != 2048 {
		t.Fatalf("unexpected ranges: %+v", first)
	}
	if first.SHA256 != strings.ToLower(sampleDigest) {
		t.Fatalf("digest not lowercased: %q", first.SHA256)
	}
	if first.End() != 512 {
		t.Fatalf("end = %d, want 512", first.End())
	}

	second := descriptors[1]
	if second.SHA256 != "" {
		t.Fatal("empty digest must stay empty")
	}
	if second.KeyIndex != 3 {
		t.Fatalf("key index = %d, want 3", second.KeyIndex)
	}

	if TotalOriginal(descriptors) != 2748 {
		t.Fatalf("total original = %d, want 2748", TotalOriginal(descriptors))
	}
}

func TestDecodeOrderPreserved(t *testing.T) {
	xml := `<fileIndex>
<file Name="z.bin" Offset="100" Length="10" OriginalLength="1" KeyIndex="0"/>
<file Name="a.bin" Offset="0" Length="10" OriginalLength="1" KeyIndex="0"/>
</fileIndex>`
	descriptors, err := Decode(strings.NewReader(xml), 200)
	if err != nil {
		t.Fatal(err)
	}
	if descriptors[0].Path != "z.bin" || descriptors[1].Path != "a.bin" {
		t.Fatal("table order must be preserved")
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name string
		xml  string
	}{
		{"range past region", `<fileIndex><file Name="a" Offset="900" Length="200" OriginalLength="1" KeyIndex="0"/></fileIndex>`},
		{"negative offset", `<fileIndex><file Name="a" Offset="-1" Length="10" OriginalLength="1" KeyIndex="0"/></fileIndex>`},
		{"zero length", `<fileIndex><file Name="a" Offset="0" Length="0" OriginalLength="1" KeyIndex="0"/></fileIndex>`},
		{"traversal", `<fileIndex><file Name="..\..\etc\passwd" Offset="0" Length="10" OriginalLength="1" KeyIndex="0"/></fileIndex>`},
		{"absolute", `<fileIndex><file Name="/etc/passwd" Offset="0" Length="10" OriginalLength="1" KeyIndex="0"/></fileIndex>`},
		{"drive letter", `<fileIndex><file Name="c:\boot.bin" Offset="0" Length="10" OriginalLength="1" KeyIndex="0"/></fileIndex>`},
		{"empty name", `<fileIndex><file Name="" Offset="0" Length="10" OriginalLength="1" KeyIndex="0"/></fileIndex>`},
		{"bad digest", `<fileIndex><file Name="a" Offset="0" Length="10" OriginalLength="1" FileSha256Hash="beef" KeyIndex="0"/></fileIndex>`},
		{"duplicate path", `<fileIndex>
<file Name="a.bin" Offset="0" Length="10" OriginalLength="1" KeyIndex="0"/>
<file Name="a.bin" Offset="10" Length="10" OriginalLength="1" KeyIndex="0"/>
</fileIndex>`},
		{"no entries", `<fileIndex></fileIndex>`},
		{"malformed xml", `<fileIndex><file Name="a"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.xml), 1000)
			if !errors.Is(err, pipeline.ErrFormat) {
				t.Fatalf("expected format error, got %v", err)
			}
		})
	}
}

func TestNormalizePathRedundantSegments(t *testing.T) {
	descriptors, err := Decode(strings.NewReader(
		`<fileIndex><file Name="images/./sub//img.bin" Offset="0" Length="10" OriginalLength="1" KeyIndex="0"/></fileIndex>`), 100)
	if err != nil {
		t.Fatal(err)
	}
	if descriptors[0].Path != "images/sub/img.bin" {
		t.Fatalf("path = %q, want cleaned", descriptors[0].Path)
	}
}
