package ai

// Transcript is the normalized transcription result from the speech backend.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"` // audio duration in seconds
	Segments []Segment `json:"segments,omitempty"`
	Words    []Word    `json:"words,omitempty"`
}

// Segment is a contiguous span of decoded speech. AvgLogProb is a pointer
// because not every backend reports it; nil means no signal, not zero.
type Segment struct {
	ID           int      `json:"id"`
	Start        float64  `json:"start"`
	End          float64  `json:"end"`
	Text         string   `json:"text"`
	AvgLogProb   *float64 `json:"avg_logprob,omitempty"`
	NoSpeechProb float64  `json:"no_speech_prob,omitempty"`
}

// Word is a timestamped word from the speech backend.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
