package transcribe

// InitialPrompt biases the decoder toward QA and bug-report vocabulary.
const InitialPrompt = "This is user feedback from software testing. " +
	"Common terms: bug, crash, error, freeze, glitch, broken, not working, " +
	"feature request, suggestion, improvement, UI, UX, confusing, slow, lag, performance."

// Options are per-request decoding options passed to a Provider.
type Options struct {
	Language string
	Prompt   string // initial_prompt / domain vocabulary

	// Decoding
	BeamSize                int
	ConditionOnPreviousText bool
	WordTimestamps          bool

	// Anti-hallucination
	NoSpeechThreshold float64
	LogProbThreshold  float64

	// VAD
	VadFilter            bool
	MinSilenceDurationMs int
}

// DefaultOptions returns the fixed configuration used for every /asr request.
// Changing any of these changes transcription output.
func DefaultOptions() Options {
	return Options{
		Language:                "en",
		Prompt:                  InitialPrompt,
		BeamSize:                5,
		ConditionOnPreviousText: true,
		WordTimestamps:          true,
		NoSpeechThreshold:       0.6,
		LogProbThreshold:        -1.0,
		VadFilter:               true,
		MinSilenceDurationMs:    500,
	}
}
