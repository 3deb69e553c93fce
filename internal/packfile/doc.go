// Package packfile decodes the block framing of the packed region.
//
// Every embedded file is stored as a chain of NTENCODE blocks: a 112-byte
// header (sizes, codec subtype, IV) followed by an AES-CBC payload whose
// plaintext is a 112-byte decompress header plus the compressed stream.
// Block keys come from the key map region, indexed by the file's base key
// index plus the block's position.
//
// Blocks are the codec-safe boundary of the format, so ScanBlocks and
// PlanSegments together give the scheduler everything it needs to split a
// large file into disjoint, independently decodable segments whose output
// ranges never overlap.
package packfile
