package speechtotext

// Segment is one incremental update from an STT engine describing a
// time-bounded span of recognized text. Segments for the same utterance
// arrive repeatedly with revised boundaries as the engine refines its
// hypothesis.
type Segment struct {
	Start float64  `json:"start"`
	End   float64  `json:"end"`
	Text  string   `json:"text"`
	Words []string `json:"words,omitempty"`

	// Complete marks the segment as word-boundary stable.
	Complete bool `json:"complete"`
	// Final marks the segment as utterance-boundary stable.
	Final bool `json:"final"`
}
