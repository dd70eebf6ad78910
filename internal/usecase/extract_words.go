package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vidlex/vidlex-extraction-service/internal/domain/entity"
	"github.com/vidlex/vidlex-extraction-service/internal/domain/port"
	"github.com/vidlex/vidlex-extraction-service/internal/infra/metrics"
	"github.com/vidlex/vidlex-extraction-service/internal/wordlist"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ExtractWordsUseCase drives one extraction request end to end: download the
// video, sample one frame per second of the requested range, run each frame
// through the OCR collaborator sequentially, normalize the text into a unique
// word list and upload it as CSV.
type ExtractWordsUseCase struct {
	repo       port.JobRepository
	storage    port.VideoStorage
	sampler    port.FrameSampler
	recognizer port.TextRecognizer
	exclusions port.ExclusionStore
	publisher  port.StatusPublisher
	dlq        port.DLQPublisher
	notifier   port.FailureNotifier
	logger     *zap.Logger
	tempDir    string
	maxRetry   int
}

type ExtractWordsConfig struct {
	TempDir    string
	MaxRetries int
}

func NewExtractWordsUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	sampler port.FrameSampler,
	recognizer port.TextRecognizer,
	exclusions port.ExclusionStore,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ExtractWordsConfig,
) *ExtractWordsUseCase {
	return &ExtractWordsUseCase{
		repo:       repo,
		storage:    storage,
		sampler:    sampler,
		recognizer: recognizer,
		exclusions: exclusions,
		publisher:  publisher,
		dlq:        dlq,
		notifier:   notifier,
		logger:     logger,
		tempDir:    cfg.TempDir,
		maxRetry:   cfg.MaxRetries,
	}
}

func (uc *ExtractWordsUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExtractWordsUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ExtractionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		rng := entity.TimeRange{Start: msg.StartSeconds, End: msg.EndSeconds}
		job = entity.NewExtractionJob(msg.UserID, msg.VideoKey, rng, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ExtractWordsUseCase) runPipeline(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video
	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+path.Ext(msg.VideoKey))
	if err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Probe metadata and clamp the requested range to the real duration
	meta, err := uc.sampler.Probe(ctx, videoPath)
	if err != nil {
		log.Error("video probe failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "probe_video: "+err.Error(), log)
	}
	rng := entity.TimeRange{Start: msg.StartSeconds, End: msg.EndSeconds}.Clamp(meta.Duration)

	reportProgress := func(m string) {
		log.Debug("pipeline progress", zap.String("progress", m))
	}

	// Sample one frame per integer second
	smStart := time.Now()
	ctxSm, spanSm := tracer.Start(ctx, "sample_frames")
	frames, err := uc.sampler.Sample(ctxSm, videoPath, rng, reportProgress)
	if err != nil {
		spanSm.End()
		log.Error("frame sampling failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "sample_frames: "+err.Error(), log)
	}
	spanSm.End()
	metrics.JobProcessingDuration.WithLabelValues("sample").Observe(time.Since(smStart).Seconds())
	metrics.FramesSampledTotal.Add(float64(len(frames)))

	// OCR every frame, sequentially, skipping individual failures
	rcStart := time.Now()
	ctxRc, spanRc := tracer.Start(ctx, "recognize_text")
	textBlocks, err := uc.collectText(ctxRc, frames, reportProgress, log)
	if err != nil {
		spanRc.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "recognize_text: "+err.Error(), log)
	}
	spanRc.End()
	metrics.JobProcessingDuration.WithLabelValues("recognize").Observe(time.Since(rcStart).Seconds())

	// Snapshot the exclusion set, then normalize
	excluded, err := uc.exclusions.Load(ctx)
	if err != nil {
		log.Warn("exclusion list unavailable, using defaults", zap.Error(err))
		excluded = wordlist.DefaultExclusions
	}
	words := wordlist.Unique(textBlocks, excluded)

	// Export as CSV
	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "export_word_list")
	payload, err := wordlist.EncodeCSV(words)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "encode_csv: "+err.Error(), log)
	}
	wordListKey := fmt.Sprintf("%s/%s/%s", msg.UserID, job.ID.String(), wordlist.CSVFileName)
	if err := uc.storage.UploadWordList(ctxUp, wordListKey, bytes.NewReader(payload), int64(len(payload))); err != nil {
		spanUp.End()
		log.Error("word list upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_word_list: "+err.Error(), log)
	}
	spanUp.End()
	metrics.JobProcessingDuration.WithLabelValues("export").Observe(time.Since(upStart).Seconds())
	metrics.WordsExtractedTotal.Add(float64(len(words)))

	job.MarkCompleted(wordListKey, len(frames), len(words), meta.Duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", len(frames)),
		zap.Int("word_count", len(words)),
		zap.Float64("duration_secs", meta.Duration),
		zap.String("word_list_key", wordListKey),
	)

	return nil
}

// collectText runs the OCR collaborator over the frames one at a time, in
// order. A failed call skips that frame and moves on; only context
// cancellation aborts the batch. Returned blocks correspond to the frames
// whose calls succeeded with non-empty text.
func (uc *ExtractWordsUseCase) collectText(ctx context.Context, frames []entity.Frame, onProgress port.Progress, log *zap.Logger) ([]string, error) {
	if onProgress == nil {
		onProgress = func(string) {}
	}

	blocks := make([]string, 0, len(frames))

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		onProgress(fmt.Sprintf("analyzing frame %d of %d", i+1, len(frames)))

		text, err := uc.recognizer.RecognizeText(ctx, frame.Image, frame.MIME)
		if err != nil {
			log.Warn("ocr call failed, skipping frame",
				zap.Int("frame_id", frame.ID),
				zap.Error(err),
			)
			onProgress(fmt.Sprintf("skipping frame %d", i+1))
			metrics.FramesSkippedTotal.Inc()
			continue
		}
		if text == "" {
			continue
		}
		blocks = append(blocks, text)
	}

	return blocks, nil
}

func (uc *ExtractWordsUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ExtractWordsUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ExtractWordsUseCase) publishStatus(ctx context.Context, job *entity.ExtractionJob, log *zap.Logger) {
	statusMsg := entity.ExtractionStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		WordListKey:  job.WordListKey,
		FrameCount:   job.FrameCount,
		WordCount:    job.WordCount,
		Duration:     job.VideoDuration,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
