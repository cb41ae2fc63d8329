package transcribe

import "context"

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
	Name() string  // "faster-whisper", "whisper-server"
	Model() string // model identifier for health and logs
	Close() error
}

// Result is the common transcription result from any provider.
type Result struct {
	Language            string
	LanguageProbability *float64 // nil if the provider doesn't report it
	Duration            float64  // audio duration in seconds, 0 if unknown
	Segments            []Segment
}

// Segment is a contiguous span of recognized speech.
type Segment struct {
	Text  string
	Start float64
	End   float64
	Words []Word
}

// Word is a timestamped word from any STT provider.
type Word struct {
	Word        string
	Start       float64  // seconds
	End         float64  // seconds
	Probability *float64 // nil if the provider doesn't report it
}
