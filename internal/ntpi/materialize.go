package ntpi

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ntpidump/internal/logging"
	"ntpidump/internal/pipeline"
)

// Artifacts names the workspace files stage 1 produces.
type Artifacts struct {
	Dir string
	// Regions maps each materialized region type to its artifact path.
	Regions map[RegionType]string
	// PackedSize is the byte length of the packed region artifact.
	PackedSize int64
}

// Path returns the artifact path for a region type, or "" when the
// container did not carry that region.
func (a Artifacts) Path(t RegionType) string {
	return a.Regions[t]
}

// Materialize writes every walked region into dir: manifest regions as
// their decrypted payloads, the packed region as a verbatim byte-for-byte
// copy streamed from the container. No interpretation of region bytes
// happens here.
func Materialize(regions []Region, ra io.ReaderAt, dir string, logger *slog.Logger) (Artifacts, error) {
	log := logging.WithComponent(logger, "materializer")
	artifacts := Artifacts{Dir: dir, Regions: make(map[RegionType]string, len(regions))}

	for _, region := range regions {
		dest := filepath.Join(dir, region.Header.Type.ArtifactName())

		if region.Header.Type == RegionPacked {
			written, err := copyPackedRegion(ra, region, dest)
			if err != nil {
				return Artifacts{}, err
			}
			artifacts.PackedSize = written
			artifacts.Regions[region.Header.Type] = dest
			log.Debug("packed region materialized",
				logging.String(logging.FieldRegion, region.Header.Type.Name()),
				logging.Int64("bytes", written))
			continue
		}

		if err := os.WriteFile(dest, region.Payload, 0o644); err != nil {
			return Artifacts{}, pipeline.Wrap(pipeline.ErrIO, "materialize", "write artifact",
				region.Header.Type.Name(), err)
		}
		artifacts.Regions[region.Header.Type] = dest
		log.Debug("region materialized",
			logging.String(logging.FieldRegion, region.Header.Type.Name()),
			logging.Int("bytes", len(region.Payload)))
	}

	return artifacts, nil
}

func copyPackedRegion(ra io.ReaderAt, region Region, dest string) (int64, error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, pipeline.Wrap(pipeline.ErrIO, "materialize", "create packed artifact", "", err)
	}
	defer out.Close()

	section := io.NewSectionReader(ra, region.Offset, int64(region.Header.Size))
	written, err := io.Copy(out, section)
	if err != nil {
		return 0, pipeline.Wrap(pipeline.ErrIO, "materialize", "copy packed region", "", err)
	}
	if written != int64(region.Header.Size) {
		return 0, pipeline.Wrap(pipeline.ErrFormat, "materialize", "copy packed region",
			fmt.Sprintf("declared %d bytes, source yielded %d", region.Header.Size, written), nil)
	}
	return written, out.Close()
}
