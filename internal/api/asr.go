package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-asr/internal/audio"
	"github.com/snarg/whisper-asr/internal/metrics"
	"github.com/snarg/whisper-asr/internal/transcribe"
)

// AudioField is the multipart field carrying the upload.
const AudioField = "audio_file"

const msgNoAudio = "No audio"

// ErrMissingInput means the request carried no audio_file part.
var ErrMissingInput = errors.New("missing audio_file upload")

// TranscriptionError wraps any failure while staging or transcribing.
// Its message is the cause's message, unchanged.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return e.Err.Error() }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// ASRHandler handles POST /asr.
type ASRHandler struct {
	provider transcribe.Provider
	opts     transcribe.Options
	tempDir  string // "" = os.TempDir()
	maxBytes int64  // 0 = unlimited
	inFlight atomic.Int64
	log      zerolog.Logger
}

// ASROptions configures an ASRHandler.
type ASROptions struct {
	Provider transcribe.Provider
	Options  transcribe.Options
	TempDir  string
	MaxBytes int64
	Log      zerolog.Logger
}

// NewASRHandler creates a new /asr handler.
func NewASRHandler(o ASROptions) *ASRHandler {
	return &ASRHandler{
		provider: o.Provider,
		opts:     o.Options,
		tempDir:  o.TempDir,
		maxBytes: o.MaxBytes,
		log:      o.Log.With().Str("handler", "asr").Logger(),
	}
}

// InFlight, ProviderName and Model feed the metrics collector.
func (h *ASRHandler) InFlight() int64      { return h.inFlight.Load() }
func (h *ASRHandler) ProviderName() string { return h.provider.Name() }
func (h *ASRHandler) Model() string        { return h.provider.Model() }

// Transcribe handles POST /asr.
func (h *ASRHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	tr, err := h.handle(r)
	var te *TranscriptionError
	switch {
	case err == nil:
		metrics.TranscriptionsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		WriteJSON(w, http.StatusOK, tr)
	case errors.Is(err, ErrMissingInput):
		metrics.TranscriptionsTotal.WithLabelValues(metrics.OutcomeMissingInput).Inc()
		WriteError(w, http.StatusBadRequest, msgNoAudio)
	case errors.As(err, &te):
		metrics.TranscriptionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		h.log.Error().Err(te.Err).Msg("transcription failed")
		WriteError(w, http.StatusInternalServerError, te.Error())
	default:
		metrics.TranscriptionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		h.log.Error().Err(err).Msg("transcription failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// handle walks the multipart stream to the audio part and transcribes it.
// The staged file is removed before handle returns.
func (h *ASRHandler) handle(r *http.Request) (*transcribe.Transcript, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, ErrMissingInput
		}
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, &TranscriptionError{Err: err}
			}
			return nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
		}
		if part.FormName() != AudioField || !isFilePart(part) {
			part.Close()
			continue
		}
		defer part.Close()
		return h.transcribe(r.Context(), part, part.FileName())
	}
}

// isFilePart reports whether the part was sent as a file. A filename
// parameter marks it as one, even when empty.
func isFilePart(p *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func (h *ASRHandler) transcribe(ctx context.Context, upload io.Reader, filename string) (*transcribe.Transcript, error) {
	path, cleanup, err := audio.Stage(h.tempDir, upload, filename)
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	defer func() {
		if err := cleanup(); err != nil {
			metrics.TempCleanupFailuresTotal.Inc()
			h.log.Debug().Err(err).Str("path", path).Msg("temp file cleanup failed")
		}
	}()

	if fi, err := os.Stat(path); err == nil {
		metrics.UploadSize.Observe(float64(fi.Size()))
	}

	start := time.Now()
	res, err := h.callProvider(ctx, path)
	elapsed := time.Since(start)
	metrics.TranscriptionDuration.Observe(elapsed.Seconds())
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}

	tr := transcribe.Shape(res, h.opts.Language)
	h.log.Debug().
		Str("file", filename).
		Str("language", tr.Language).
		Int("segments", len(res.Segments)).
		Int("words", len(tr.Words)).
		Dur("duration_ms", elapsed).
		Msg("transcription complete")
	return &tr, nil
}

func (h *ASRHandler) callProvider(ctx context.Context, path string) (*transcribe.Result, error) {
	h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	return h.provider.Transcribe(ctx, path, h.opts)
}
