package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vidlex/vidlex-extraction-service/internal/domain/entity"
	"github.com/vidlex/vidlex-extraction-service/internal/domain/port"
	"go.uber.org/zap"
)

// lastFrameMargin is how far below the stream end the final seek is aimed.
// Input-side -ss with accurate seek discards every frame below the target,
// so seeking to the exact duration of an integral-length clip (last pts
// strictly below it) would encode nothing.
const lastFrameMargin = 0.1

// Sampler walks a time range second by second, seeking and rasterizing one
// frame per integer second. Captures are strictly sequential: one ffmpeg
// invocation at a time, each bounded by seekTimeout so a source that never
// reaches the requested position fails the run instead of stalling it.
type Sampler struct {
	format      string
	quality     int
	seekTimeout time.Duration
	logger      *zap.Logger
}

func NewSampler(format string, quality int, seekTimeout time.Duration, logger *zap.Logger) *Sampler {
	return &Sampler{
		format:      format,
		quality:     quality,
		seekTimeout: seekTimeout,
		logger:      logger,
	}
}

func (s *Sampler) Probe(ctx context.Context, videoPath string) (*entity.VideoMetadata, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, &entity.DecodeError{Reason: fmt.Errorf("ffprobe: %w", err)}
	}

	lines := strings.Fields(strings.TrimSpace(string(output)))
	if len(lines) < 3 {
		return nil, &entity.DecodeError{Reason: fmt.Errorf("ffprobe returned incomplete metadata: %q", string(output))}
	}

	width, err := strconv.Atoi(lines[0])
	if err != nil {
		return nil, &entity.DecodeError{Reason: fmt.Errorf("parse width: %w", err)}
	}
	height, err := strconv.Atoi(lines[1])
	if err != nil {
		return nil, &entity.DecodeError{Reason: fmt.Errorf("parse height: %w", err)}
	}
	duration, err := strconv.ParseFloat(lines[2], 64)
	if err != nil {
		return nil, &entity.DecodeError{Reason: fmt.Errorf("parse duration: %w", err)}
	}

	return &entity.VideoMetadata{Duration: duration, Width: width, Height: height}, nil
}

func (s *Sampler) Sample(ctx context.Context, videoPath string, rng entity.TimeRange, onProgress port.Progress) ([]entity.Frame, error) {
	if onProgress == nil {
		onProgress = func(string) {}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := s.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "vidlex-frames-")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	seconds := rng.Seconds()
	total := rng.ExpectedFrames()
	frames := make([]entity.Frame, 0, len(seconds))

	for i, sec := range seconds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		image, err := s.captureAt(ctx, videoPath, workDir, sec, seekTarget(sec, meta.Duration))
		if err != nil {
			return nil, err
		}

		frames = append(frames, entity.Frame{ID: sec, Image: image, MIME: s.mimeType()})
		onProgress(fmt.Sprintf("captured frame %d of %d", i+1, total))
	}

	s.logger.Info("sampling complete",
		zap.Int("frame_count", len(frames)),
		zap.Float64("range_start", rng.Start),
		zap.Float64("range_end", rng.End),
	)

	return frames, nil
}

// seekTarget aims a capture at its integer second, pulled back to just below
// the stream end when the second sits at (or past) the clip's duration. The
// frame keeps its integer ID; only the seek position moves.
func seekTarget(sec int, duration float64) float64 {
	pos := float64(sec)
	if duration > 0 && pos > duration-lastFrameMargin {
		pos = math.Max(0, duration-lastFrameMargin)
	}
	return pos
}

func (s *Sampler) captureAt(ctx context.Context, videoPath, workDir string, sec int, pos float64) ([]byte, error) {
	seekCtx, cancel := context.WithTimeout(ctx, s.seekTimeout)
	defer cancel()

	outPath := filepath.Join(workDir, fmt.Sprintf("frame_%06d.%s", sec, s.format))
	cmd := exec.CommandContext(seekCtx, "ffmpeg",
		"-ss", strconv.FormatFloat(pos, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(s.quality),
		"-y",
		outPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if seekCtx.Err() == context.DeadlineExceeded {
			return nil, &entity.DecodeError{Reason: fmt.Errorf("seek to %ds timed out after %s", sec, s.seekTimeout)}
		}
		return nil, &entity.DecodeError{Reason: fmt.Errorf("ffmpeg seek to %ds: %w, output: %s", sec, err, string(output))}
	}

	image, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &entity.RenderError{Second: sec, Reason: err}
	}
	if len(image) == 0 {
		return nil, &entity.RenderError{Second: sec, Reason: fmt.Errorf("empty image")}
	}

	// keep the scratch dir flat; each capture cleans up after itself
	_ = os.Remove(outPath)

	return image, nil
}

func (s *Sampler) mimeType() string {
	switch s.format {
	case "png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
