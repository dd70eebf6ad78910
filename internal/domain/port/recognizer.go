package port

import "context"

// TextRecognizer is the remote OCR collaborator: image bytes in, text out.
// Implementations may fail per call; callers decide whether that aborts
// anything. One request is in flight at a time by convention.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error)
}
