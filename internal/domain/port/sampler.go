package port

import (
	"context"

	"github.com/vidlex/vidlex-extraction-service/internal/domain/entity"
)

// Progress receives human-readable progress messages as a run advances.
type Progress func(message string)

type FrameSampler interface {
	// Probe reads the media metadata (duration, native dimensions).
	Probe(ctx context.Context, videoPath string) (*entity.VideoMetadata, error)

	// Sample captures one frame per integer second of rng, in ascending
	// order, reporting progress after each capture. Fails with
	// *entity.DecodeError or *entity.RenderError.
	Sample(ctx context.Context, videoPath string, rng entity.TimeRange, onProgress Progress) ([]entity.Frame, error)
}
