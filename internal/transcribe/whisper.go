package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ServerClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// backed by faster-whisper (speaches, faster-whisper-server).
// Implements the Provider interface.
type ServerClient struct {
	url    string
	model  string
	client *http.Client
}

// serverResponse is the verbose_json response from the server.
type serverResponse struct {
	Text                string          `json:"text"`
	Language            string          `json:"language"`
	LanguageProbability *float64        `json:"language_probability"`
	Duration            float64         `json:"duration"`
	Segments            []serverSegment `json:"segments"`
	Words               []serverWord    `json:"words"`
}

type serverSegment struct {
	Text  string       `json:"text"`
	Start float64      `json:"start"`
	End   float64      `json:"end"`
	Words []serverWord `json:"words"`
}

// serverWord is a word with timestamps. speaches includes probability;
// OpenAI does not.
type serverWord struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability"`
}

// NewServerClient creates a new transcription server client. A zero
// timeout means no client-side timeout.
func NewServerClient(url, model string, timeout time.Duration) *ServerClient {
	return &ServerClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (sc *ServerClient) Name() string  { return "whisper-server" }
func (sc *ServerClient) Model() string { return sc.model }
func (sc *ServerClient) Close() error  { return nil }

// Transcribe sends an audio file to the server and returns the result.
// Uses multipart/form-data. Servers ignore form fields they don't know,
// so the faster-whisper specific options are always sent.
func (sc *ServerClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if sc.model != "" {
		w.WriteField("model", sc.model)
	}
	if opts.Language != "" {
		w.WriteField("language", opts.Language)
	}

	// verbose_json carries segments, words and language
	w.WriteField("response_format", "verbose_json")
	if opts.WordTimestamps {
		w.WriteField("timestamp_granularities[]", "word")
		w.WriteField("timestamp_granularities[]", "segment")
	}
	if opts.Prompt != "" {
		w.WriteField("prompt", opts.Prompt)
	}
	if opts.BeamSize > 0 {
		w.WriteField("beam_size", strconv.Itoa(opts.BeamSize))
	}
	w.WriteField("condition_on_previous_text", strconv.FormatBool(opts.ConditionOnPreviousText))
	w.WriteField("no_speech_threshold", formatFloat(opts.NoSpeechThreshold))
	w.WriteField("log_prob_threshold", formatFloat(opts.LogProbThreshold))

	if opts.VadFilter {
		w.WriteField("vad_filter", "true")
		if opts.MinSilenceDurationMs > 0 {
			vp, _ := json.Marshal(map[string]int{"min_silence_duration_ms": opts.MinSilenceDurationMs})
			w.WriteField("vad_parameters", string(vp))
		}
	}

	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed serverResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return parsed.toResult(), nil
}

// toResult maps the wire format into a Result. When the server returns
// words only at the top level, each word goes to the segment it starts in
// (or the last segment that started before it).
func (r *serverResponse) toResult() *Result {
	res := &Result{
		Language:            r.Language,
		LanguageProbability: r.LanguageProbability,
		Duration:            r.Duration,
	}

	if len(r.Segments) == 0 {
		if r.Text == "" && len(r.Words) == 0 {
			return res
		}
		res.Segments = []Segment{{Text: r.Text, Words: convertWords(r.Words)}}
		return res
	}

	nested := false
	res.Segments = make([]Segment, len(r.Segments))
	for i, s := range r.Segments {
		res.Segments[i] = Segment{Text: s.Text, Start: s.Start, End: s.End, Words: convertWords(s.Words)}
		if len(s.Words) > 0 {
			nested = true
		}
	}
	if nested {
		return res
	}

	idx := 0
	for _, w := range convertWords(r.Words) {
		for idx+1 < len(res.Segments) && w.Start >= res.Segments[idx+1].Start {
			idx++
		}
		res.Segments[idx].Words = append(res.Segments[idx].Words, w)
	}
	return res
}

func convertWords(in []serverWord) []Word {
	if len(in) == 0 {
		return nil
	}
	out := make([]Word, len(in))
	for i, w := range in {
		out[i] = Word{Word: w.Word, Start: w.Start, End: w.End, Probability: w.Probability}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
