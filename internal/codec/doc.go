// Package codec is the pure decompression layer of the extractor.
//
// A Codec tag names one compression algorithm; Decompress maps (tag, bytes)
// to decompressed bytes or a codec error. The scheduler treats tags as
// opaque. LZMA2 is the algorithm the NTPI packaging tool actually emits;
// the registry also carries zstd and a passthrough tag so the block layer
// stays generic. Length and checksum verification live with callers, which
// distinguishes "the stream was garbage" from "the table lied about the
// result".
package codec
