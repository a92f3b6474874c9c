package whisper

import (
	"errors"
	"fmt"
)

var (
	ErrEngineUnavailable = errors.New("transcription engine unavailable")
	ErrUnsupportedDevice = errors.New("unsupported device or compute type")
)

type LoadError struct {
	Key string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type TranscribeError struct {
	Path string
	Err  error
}

func (e *TranscribeError) Error() string {
	return fmt.Sprintf("transcribe %s: %v", e.Path, e.Err)
}

func (e *TranscribeError) Unwrap() error { return e.Err }
