package packfile

// Segment is a contiguous run of whole blocks that one worker can decode
// independently. Segments of the same file never overlap, in either the
// packed region or the output file.
type Segment struct {
	// Start and End bound the segment's packed bytes, half open.
	Start int64
	End   int64
	// StartBlock is the ordinal of the segment's first block within the
	// file, needed to pick up key rotation mid-chain.
	StartBlock uint64
	// OutputOffset and OutputSize locate the segment's decompressed bytes
	// in the reassembled file.
	OutputOffset int64
	OutputSize   int64
}

// PlanSegments splits a scanned block chain into at most maxSegments
// segments, balanced by decompressed size. Blocks are never split, so a
// chain with fewer blocks than maxSegments yields one segment per block.
func PlanSegments(refs []BlockRef, end int64, maxSegments int) []Segment {
	if len(refs) == 0 {
		return nil
	}
	if maxSegments < 1 {
		maxSegments = 1
	}
	if maxSegments > len(refs) {
		maxSegments = len(refs)
	}

	target := TotalDecompressed(refs) / int64(maxSegments)

	var segments []Segment
	current := Segment{
		Start:        refs[0].Offset,
		StartBlock:   refs[0].Index,
		OutputOffset: refs[0].DecompressedOffset,
	}
	for i, ref := range refs {
		current.OutputSize += int64(ref.ProcessedSize)

		last := i == len(refs)-1
		// Close once the segment carries its share. The final slot stays
		// open to the end so the plan never exceeds maxSegments.
		lastSlot := len(segments) == maxSegments-1
		if !last && (lastSlot || current.OutputSize < target) {
			continue
		}

		if last {
			current.End = end
		} else {
			current.End = refs[i+1].Offset
		}
		segments = append(segments, current)
		if !last {
			current = Segment{
				Start:        refs[i+1].Offset,
				StartBlock:   refs[i+1].Index,
				OutputOffset: refs[i+1].DecompressedOffset,
			}
		}
	}
	return segments
}
