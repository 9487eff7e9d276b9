package chunk

import "sort"

// ProbeSkipFraction is the share of the source skipped before the first
// probe window, so intros and studio logos never land in a probe.
const ProbeSkipFraction = 0.05

// PlanChunks turns a sorted scene-change list into a contiguous chunk plan.
//
// Each scene boundary opens a candidate chunk ending one frame before the
// next boundary (or at the last source frame). Candidates shorter than
// minLength greedily absorb following boundaries until the combined range is
// long enough or the boundaries run out, in which case the chunk extends to
// the end of the source. The walk is a single left-to-right pass.
//
// An empty scene list yields one chunk spanning the whole source.
func PlanChunks(sceneChanges []int, sourceLength, minLength int, q float64) []Chunk {
	if sourceLength <= 0 {
		return nil
	}

	scenes := normalizeScenes(sceneChanges, sourceLength)

	var chunks []Chunk
	id := 1
	i := 0
	for i < len(scenes) {
		start := scenes[i]
		var end int
		if i < len(scenes)-1 {
			end = scenes[i+1] - 1
		} else {
			end = sourceLength - 1
		}

		next := i + 1
		if end-start+1 < minLength {
			// Absorb following boundaries until the chunk is long enough.
			next = i + 2
			for next < len(scenes) {
				end = scenes[next] - 1
				if end-start+1 >= minLength {
					break
				}
				next++
			}
			if next >= len(scenes) {
				end = sourceLength - 1
			}
		}

		chunks = append(chunks, Chunk{
			ID:     id,
			Start:  start,
			End:    end,
			Length: end - start + 1,
			Q:      q,
		})
		id++
		i = next
	}

	return chunks
}

// ApplyCredits carves a credits region out of an existing plan. The chunk
// containing creditsStart is truncated to end one frame before it, chunks
// that begin at or after creditsStart are dropped, and a trailing credits
// chunk covering [creditsStart, lastFrame] is appended with creditsQ. When
// creditsStart is exactly one frame past the final chunk's end no truncation
// is needed. A truncated remainder shorter than minLength is merged into its
// predecessor, provided more than one chunk remains.
func ApplyCredits(chunks []Chunk, creditsStart, minLength int, creditsQ float64) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	lastFrame := chunks[len(chunks)-1].End
	if creditsStart <= 0 || creditsStart > lastFrame {
		return chunks
	}

	kept := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Start >= creditsStart {
			continue
		}
		if c.Start < creditsStart && creditsStart <= c.End {
			c.End = creditsStart - 1
		}
		c.Length = c.End - c.Start + 1
		kept = append(kept, c)
	}

	// Merge an undersized remainder into its predecessor.
	if len(kept) > 1 && kept[len(kept)-1].Length < minLength {
		prev := &kept[len(kept)-2]
		prev.End = kept[len(kept)-1].End
		prev.Length = prev.End - prev.Start + 1
		kept = kept[:len(kept)-1]
	}

	kept = append(kept, Chunk{
		ID:        len(kept) + 1,
		Start:     creditsStart,
		End:       lastFrame,
		Length:    lastFrame - creditsStart + 1,
		IsCredits: true,
		Q:         creditsQ,
	})
	return kept
}

// PlanProbeChunks samples count evenly spaced windows of windowLength frames,
// starting after the initial skip fraction of the source and ending before
// creditsStart (pass 0 for no credits). The result is deterministic for a
// given input. Fewer windows are returned when the usable range cannot hold
// them without overlap.
func PlanProbeChunks(sourceLength, count, windowLength, creditsStart int, q float64) []Chunk {
	if sourceLength <= 0 || count <= 0 || windowLength <= 0 {
		return nil
	}

	limit := sourceLength
	if creditsStart > 0 && creditsStart < limit {
		limit = creditsStart
	}
	skip := int(float64(sourceLength) * ProbeSkipFraction)
	usable := limit - skip
	if usable < windowLength {
		// Degenerate source: one window at the start of the usable range.
		start := skip
		end := min(start+windowLength, sourceLength) - 1
		return []Chunk{{ID: 1, Start: start, End: end, Length: end - start + 1, Q: q}}
	}
	if maxWindows := usable / windowLength; count > maxWindows {
		count = maxWindows
	}

	chunks := make([]Chunk, 0, count)
	stride := 0
	if count > 1 {
		stride = (usable - windowLength) / (count - 1)
	}
	for i := 0; i < count; i++ {
		start := skip + i*stride
		end := start + windowLength - 1
		chunks = append(chunks, Chunk{
			ID:     i + 1,
			Start:  start,
			End:    end,
			Length: windowLength,
			Q:      q,
		})
	}
	return chunks
}

// LongestFirst returns a copy sorted by descending length, the order chunks
// are handed to the scheduler. Ties break on ascending ID so the order is
// deterministic.
func LongestFirst(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Length != out[j].Length {
			return out[i].Length > out[j].Length
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ByID returns a copy sorted by ascending ID, the order used for all
// reporting and aggregation.
func ByID(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// normalizeScenes clamps the boundary list to the source and guarantees a
// boundary at frame zero, so the plan always covers the whole source.
func normalizeScenes(scenes []int, sourceLength int) []int {
	out := make([]int, 0, len(scenes)+1)
	for _, s := range scenes {
		if s >= 0 && s < sourceLength {
			out = append(out, s)
		}
	}
	sort.Ints(out)
	dedup := out[:0]
	for _, s := range out {
		if len(dedup) == 0 || s != dedup[len(dedup)-1] {
			dedup = append(dedup, s)
		}
	}
	out = dedup
	if len(out) == 0 || out[0] != 0 {
		out = append([]int{0}, out...)
	}
	return out
}
