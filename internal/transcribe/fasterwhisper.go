package transcribe

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

//go:embed assets/faster_whisper_worker.py
var workerScript []byte

// ErrWorkerExited is returned once the faster-whisper helper process is gone.
var ErrWorkerExited = errors.New("faster-whisper worker exited")

// FasterWhisperOptions configures the local faster-whisper provider.
type FasterWhisperOptions struct {
	Python      string // interpreter, e.g. "python3"
	Model       string // "small", "large-v3", or a local model path
	Device      string // cpu|cuda|auto
	ComputeType string // int8|float16|...
	Log         zerolog.Logger
}

// FasterWhisper runs faster-whisper in a long-lived helper process that
// holds one loaded model. Requests are serialized: one in flight at a time.
// Implements the Provider interface.
type FasterWhisper struct {
	model string
	log   zerolog.Logger

	mu        sync.Mutex
	nextID    int64
	stdin     io.WriteCloser
	responses chan workerResponse
	done      chan struct{} // closed when the helper's stdout reaches EOF
	closing   chan struct{}
	closeOnce sync.Once

	cmd        *exec.Cmd
	stdoutPipe io.Closer
	exited     chan struct{}
	scriptPath string
}

type workerRequest struct {
	ID      int64         `json:"id"`
	Audio   string        `json:"audio"`
	Options workerOptions `json:"options"`
}

type workerOptions struct {
	Language                string  `json:"language,omitempty"`
	InitialPrompt           string  `json:"initial_prompt,omitempty"`
	BeamSize                int     `json:"beam_size"`
	WordTimestamps          bool    `json:"word_timestamps"`
	ConditionOnPreviousText bool    `json:"condition_on_previous_text"`
	NoSpeechThreshold       float64 `json:"no_speech_threshold"`
	LogProbThreshold        float64 `json:"log_prob_threshold"`
	VadFilter               bool    `json:"vad_filter"`
	MinSilenceDurationMs    int     `json:"min_silence_duration_ms,omitempty"`
}

type workerResponse struct {
	ID    int64  `json:"id"`
	Ready bool   `json:"ready"`
	Error string `json:"error"`

	Language            string          `json:"language"`
	LanguageProbability *float64        `json:"language_probability"`
	Duration            float64         `json:"duration"`
	Segments            []serverSegment `json:"segments"`
}

// StartFasterWhisper launches the helper process and blocks until the model
// is loaded or ctx is done.
func StartFasterWhisper(ctx context.Context, opts FasterWhisperOptions) (*FasterWhisper, error) {
	script, err := os.CreateTemp("", "whisper-asr-worker-*.py")
	if err != nil {
		return nil, fmt.Errorf("create helper script: %w", err)
	}
	scriptPath := script.Name()
	if _, err := script.Write(workerScript); err != nil {
		script.Close()
		os.Remove(scriptPath)
		return nil, fmt.Errorf("write helper script: %w", err)
	}
	script.Close()

	python := opts.Python
	if python == "" {
		python = "python3"
	}
	device := opts.Device
	if device == "" {
		device = "cpu"
	}
	computeType := opts.ComputeType
	if computeType == "" {
		computeType = "int8"
	}

	cmd := exec.Command(python, scriptPath,
		"--model", opts.Model,
		"--device", device,
		"--compute-type", computeType,
	)
	cmd.Env = os.Environ()
	cmd.Stderr = opts.Log.With().Str("stream", "stderr").Logger()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(scriptPath)
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	// A non-file Stdout makes Wait finish copying before it returns, so the
	// reader sees EOF only after all output has been delivered.
	pr, pw := io.Pipe()
	cmd.Stdout = pw

	if err := cmd.Start(); err != nil {
		os.Remove(scriptPath)
		return nil, fmt.Errorf("start %s: %w", python, err)
	}

	fw := newFasterWhisper(opts.Model, stdin, pr, opts.Log)
	fw.cmd = cmd
	fw.stdoutPipe = pr
	fw.scriptPath = scriptPath
	fw.exited = make(chan struct{})
	go func() {
		err := cmd.Wait()
		if err != nil {
			fw.log.Warn().Err(err).Msg("faster-whisper worker exited")
		}
		pw.CloseWithError(io.EOF)
		close(fw.exited)
	}()

	start := time.Now()
	if err := fw.waitReady(ctx); err != nil {
		fw.Close()
		return nil, err
	}
	fw.log.Info().
		Str("model", opts.Model).
		Str("device", device).
		Str("compute_type", computeType).
		Dur("load_ms", time.Since(start)).
		Msg("faster-whisper model loaded")
	return fw, nil
}

func newFasterWhisper(model string, stdin io.WriteCloser, stdout io.Reader, log zerolog.Logger) *FasterWhisper {
	fw := &FasterWhisper{
		model:     model,
		log:       log,
		stdin:     stdin,
		responses: make(chan workerResponse, 1),
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
	}
	go fw.readLoop(stdout)
	return fw
}

func (fw *FasterWhisper) Name() string  { return "faster-whisper" }
func (fw *FasterWhisper) Model() string { return fw.model }

func (fw *FasterWhisper) readLoop(stdout io.Reader) {
	defer close(fw.done)
	r := bufio.NewReaderSize(stdout, 64<<10)
	for {
		line, err := r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var resp workerResponse
			if jerr := json.Unmarshal(line, &resp); jerr != nil {
				fw.log.Warn().Err(jerr).Str("line", string(line)).Msg("unparseable worker output")
				if line[0] != '{' {
					continue
				}
				// A broken reply fails the waiting request instead of being dropped.
				resp = workerResponse{
					ID:    responseID(line),
					Error: fmt.Sprintf("unparseable worker response: %v", jerr),
				}
			}
			select {
			case fw.responses <- resp:
			case <-fw.closing:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

var responseIDPattern = regexp.MustCompile(`"id"\s*:\s*(\d+)`)

// responseID recovers the request id from a line that is not valid JSON.
// The helper writes the id last, so the last match wins. Zero if absent.
func responseID(line []byte) int64 {
	m := responseIDPattern.FindAllSubmatch(line, -1)
	if len(m) == 0 {
		return 0
	}
	id, err := strconv.ParseInt(string(m[len(m)-1][1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (fw *FasterWhisper) waitReady(ctx context.Context) error {
	select {
	case resp := <-fw.responses:
		if resp.Error != "" {
			return fmt.Errorf("load model %q: %s", fw.model, resp.Error)
		}
		if !resp.Ready {
			return fmt.Errorf("load model %q: unexpected handshake", fw.model)
		}
		return nil
	case <-fw.done:
		return fmt.Errorf("load model %q: %w", fw.model, ErrWorkerExited)
	case <-ctx.Done():
		return fmt.Errorf("load model %q: %w", fw.model, ctx.Err())
	}
}

// Transcribe sends one request to the helper and waits for its answer.
// Answers to earlier, abandoned requests are discarded by id.
func (fw *FasterWhisper) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.nextID++
	id := fw.nextID
	req := workerRequest{
		ID:    id,
		Audio: audioPath,
		Options: workerOptions{
			Language:                opts.Language,
			InitialPrompt:           opts.Prompt,
			BeamSize:                opts.BeamSize,
			WordTimestamps:          opts.WordTimestamps,
			ConditionOnPreviousText: opts.ConditionOnPreviousText,
			NoSpeechThreshold:       opts.NoSpeechThreshold,
			LogProbThreshold:        opts.LogProbThreshold,
			VadFilter:               opts.VadFilter,
			MinSilenceDurationMs:    opts.MinSilenceDurationMs,
		},
	}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode worker request: %w", err)
	}
	line = append(line, '\n')
	if _, err := fw.stdin.Write(line); err != nil {
		select {
		case <-fw.done:
			return nil, ErrWorkerExited
		default:
		}
		return nil, fmt.Errorf("write worker request: %w", err)
	}

	for {
		select {
		case resp := <-fw.responses:
			if resp.ID != id && !(resp.ID == 0 && resp.Error != "") {
				fw.log.Debug().Int64("id", resp.ID).Int64("want", id).Msg("discarding stale worker response")
				continue
			}
			if resp.Error != "" {
				return nil, errors.New(resp.Error)
			}
			return resp.toResult(), nil
		case <-fw.done:
			return nil, ErrWorkerExited
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r workerResponse) toResult() *Result {
	res := &Result{
		Language:            r.Language,
		LanguageProbability: r.LanguageProbability,
		Duration:            r.Duration,
		Segments:            make([]Segment, len(r.Segments)),
	}
	for i, s := range r.Segments {
		res.Segments[i] = Segment{Text: s.Text, Start: s.Start, End: s.End, Words: convertWords(s.Words)}
	}
	return res
}

// Close stops the helper process. Safe to call more than once.
func (fw *FasterWhisper) Close() error {
	fw.closeOnce.Do(func() {
		close(fw.closing)
		fw.stdin.Close()
		if fw.cmd == nil {
			return
		}
		// Unblocks the stdout copier so Wait can return.
		fw.stdoutPipe.Close()
		select {
		case <-fw.exited:
		case <-time.After(5 * time.Second):
			fw.log.Warn().Msg("faster-whisper worker did not exit, killing")
			fw.cmd.Process.Kill()
			<-fw.exited
		}
		os.Remove(fw.scriptPath)
	})
	return nil
}
