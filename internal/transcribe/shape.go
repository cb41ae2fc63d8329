package transcribe

import (
	"math"
	"strings"
)

// DefaultConfidence is reported when a provider gives no probability.
const DefaultConfidence = 0.9

// Transcript is the JSON payload returned by POST /asr.
type Transcript struct {
	Text       string           `json:"text"`
	Language   string           `json:"language"`
	Confidence float64          `json:"confidence"`
	Words      []TranscriptWord `json:"words"`
}

// TranscriptWord is one flattened word in a Transcript.
type TranscriptWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Shape flattens a provider Result into the response payload.
// Segment texts are concatenated as returned and the whole is trimmed;
// words keep their order across segments. fallbackLang is used when the
// provider does not report a language.
func Shape(res *Result, fallbackLang string) Transcript {
	var text strings.Builder
	words := make([]TranscriptWord, 0)
	for _, seg := range res.Segments {
		text.WriteString(seg.Text)
		for _, w := range seg.Words {
			start, end := round(w.Start, 2), round(w.End, 2)
			if end < start {
				end = start
			}
			words = append(words, TranscriptWord{
				Word:       strings.TrimSpace(w.Word),
				Start:      start,
				End:        end,
				Confidence: confidence(w.Probability),
			})
		}
	}

	lang := res.Language
	if lang == "" {
		lang = fallbackLang
	}

	return Transcript{
		Text:       strings.TrimSpace(text.String()),
		Language:   lang,
		Confidence: confidence(res.LanguageProbability),
		Words:      words,
	}
}

func confidence(p *float64) float64 {
	if p == nil || math.IsNaN(*p) {
		return DefaultConfidence
	}
	return round(math.Min(1, math.Max(0, *p)), 3)
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
