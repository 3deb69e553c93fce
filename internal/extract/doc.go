// Package extract is the parallel decompression stage. It partitions the
// packed-file table by decompressed size: small files fan whole across a
// bounded worker pool, large files are split at block boundaries into
// segments that decode concurrently into disjoint ranges of a
// preallocated output. Output is written to a .partial name and renamed
// in place only after size and checksum verification, so interrupted runs
// never leave a file that looks complete. Failures stay scoped to their
// file; the run result aggregates them.
package extract
