package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"ntpidump/internal/fileindex"
	"ntpidump/internal/pipeline"
)

// digest hashes output bytes when the table carries a checksum and
// verification is enabled; otherwise every method is a no-op.
type digest struct {
	hash hash.Hash
}

func newDigest(desc fileindex.Descriptor, opts Options) *digest {
	if !opts.VerifyChecksums || desc.SHA256 == "" {
		return &digest{}
	}
	return &digest{hash: sha256.New()}
}

func (d *digest) Write(p []byte) (int, error) {
	if d.hash != nil {
		d.hash.Write(p)
	}
	return len(p), nil
}

// Verify compares the accumulated digest against the table entry.
func (d *digest) Verify(desc fileindex.Descriptor) error {
	if d.hash == nil {
		return nil
	}
	got := hex.EncodeToString(d.hash.Sum(nil))
	if got != desc.SHA256 {
		return pipeline.Wrap(pipeline.ErrIntegrity, "extract", "checksum",
			fmt.Sprintf("%s: sha-256 %s, table declares %s", desc.Path, got, desc.SHA256), nil)
	}
	return nil
}
