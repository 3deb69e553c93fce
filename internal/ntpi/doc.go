// Package ntpi parses the NTPI firmware container and materializes its
// regions (stage 1 of the extraction pipeline).
//
// An NTPI container is a 48-byte header followed by a chain of regions.
// Each region is declared by a 16-byte header (type, size); the payload of
// every region except the packed-file region is AES-256-CBC encrypted and,
// once decrypted, starts with a block header that declares the next region
// in the chain. Region keys are selected per container version from the key
// schedule in keys.go.
//
// WalkRegions performs the full chain walk with bounds validation and
// returns decrypted payloads for the manifest regions plus the raw span of
// the packed-file region. Materialize writes those results into a workspace
// directory for stage 2. Stage 1 is strictly sequential and streams the
// packed region rather than buffering it.
package ntpi
