package pipeline

import (
	"math"
	"strings"

	"github.com/loquilabs/loqui/core/speechtotext"
)

// stitchTolerance is how far past a fragment's start a right neighbour's end
// may lie and still be considered its prefix.
const stitchTolerance = 0.3

type fragment struct {
	start float64
	text  string
}

// stitcher merges overlapping, possibly revised transcript segments into one
// growing utterance hypothesis. It is scoped to a single utterance; Reset
// clears it for the next one.
type stitcher struct {
	cutoff float64

	// fragments indexes recorded fragments by their end timestamp.
	fragments map[float64]fragment
	// memo caches the resolved text covering everything before a given
	// start timestamp.
	memo map[float64]string

	lastStart float64
	lastText  string
	seenany   bool
}

func newStitcher() *stitcher {
	return &stitcher{
		cutoff:    -1,
		fragments: map[float64]fragment{},
		memo:      map[float64]string{},
	}
}

// Reconcile folds a segment into the running transcript and returns the
// current best full-utterance text. The second return is false when the
// segment carried no new information and the caller should ignore it.
func (s *stitcher) Reconcile(segment speechtotext.Segment) (string, bool) {
	if segment.Start <= s.cutoff {
		return "", false
	}
	if s.seenany && segment.Start == s.lastStart && segment.Text == s.lastText {
		return "", false
	}
	s.lastStart = segment.Start
	s.lastText = segment.Text
	s.seenany = true

	s.fragments[segment.End] = fragment{start: segment.Start, text: segment.Text}
	// The fragment index changed, so cached resolutions may be stale.
	s.memo = map[float64]string{}

	visiting := map[float64]bool{segment.End: true}
	prefix := s.resolve(segment.Start, visiting)

	return strings.TrimSpace(prefix + segment.Text), true
}

// resolve returns the concatenated text of every fragment chained before the
// given start timestamp. Anomalies degrade to an empty prefix, never an
// error.
func (s *stitcher) resolve(start float64, visiting map[float64]bool) string {
	if cached, ok := s.memo[start]; ok {
		return cached
	}

	end, ok := s.closestEnd(start, visiting)
	if !ok {
		return ""
	}

	visiting[end] = true
	frag := s.fragments[end]
	resolved := s.resolve(frag.start, visiting) + frag.text
	s.memo[start] = resolved
	return resolved
}

// closestEnd picks the recorded fragment whose end best matches the given
// start: an exact match wins, otherwise the nearest by absolute distance,
// accepting ends past the start only within stitchTolerance.
func (s *stitcher) closestEnd(start float64, visiting map[float64]bool) (float64, bool) {
	if frag, ok := s.fragments[start]; ok && !visiting[start] && frag.start != start {
		return start, true
	}

	best := 0.0
	bestDistance := math.Inf(1)
	found := false
	for end := range s.fragments {
		if visiting[end] {
			continue
		}
		distance := math.Abs(end - start)
		if end > start && end-start > stitchTolerance {
			continue
		}
		if distance < bestDistance {
			best = end
			bestDistance = distance
			found = true
		}
	}
	return best, found
}

// AdvanceCutoff marks everything up to and including t as already consumed.
func (s *stitcher) AdvanceCutoff(t float64) {
	if t > s.cutoff {
		s.cutoff = t
	}
}

// Reset clears the per-utterance state. The cutoff survives so restarted
// transcription cannot replay consumed audio.
func (s *stitcher) Reset() {
	s.fragments = map[float64]fragment{}
	s.memo = map[float64]string{}
	s.seenany = false
}
