package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExt is used when the upload's filename carries no usable extension.
const DefaultExt = ".webm"

// StagePrefix prefixes every staged file name in the temp directory.
const StagePrefix = "whisper-asr-"

// Stage copies r into a uniquely named file under dir (os.TempDir() if empty)
// and returns its path with a cleanup func that removes it. The cleanup is
// always non-nil and safe to call more than once; on error the partial file
// has already been removed.
func Stage(dir string, r io.Reader, filename string) (string, func() error, error) {
	noop := func() error { return nil }

	f, err := os.CreateTemp(dir, StagePrefix+"*"+extFor(filename))
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		cleanup()
		return "", noop, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

// extFor keeps a short alphanumeric extension from the client filename so
// decoders that sniff by suffix still work.
func extFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return DefaultExt
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return DefaultExt
		}
	}
	return ext
}
