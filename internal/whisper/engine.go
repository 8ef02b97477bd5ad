package whisper

import "context"

type TranscriptionRequest struct {
	AudioPath string
	ModelPath string
	Language  string
}

// Engine runs speech-to-text over a finalized audio file.
type Engine interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}
