package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/vidlex/vidlex-extraction-service/internal/domain/entity"
	"github.com/vidlex/vidlex-extraction-service/internal/infra/email"
	"github.com/vidlex/vidlex-extraction-service/internal/infra/ffmpeg"
	miniostorage "github.com/vidlex/vidlex-extraction-service/internal/infra/minio"
	"github.com/vidlex/vidlex-extraction-service/internal/infra/postgres"
	"github.com/vidlex/vidlex-extraction-service/internal/infra/rabbitmq"
	redisstore "github.com/vidlex/vidlex-extraction-service/internal/infra/redis"
	"github.com/vidlex/vidlex-extraction-service/internal/infra/vision"
	"github.com/vidlex/vidlex-extraction-service/internal/usecase"
	"github.com/vidlex/vidlex-extraction-service/pkg/logger"
)

// stubOCRServer answers every chat-completions call with the given text.
func stubOCRServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": text}},
			},
		})
	}))
}

// makeTestClip renders a short synthetic clip; skips when ffmpeg is missing.
func makeTestClip(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	path := filepath.Join(t.TempDir(), "test.mp4")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi",
		"-i", "testsrc=duration=4:size=320x240:rate=25",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		path,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "generate test clip: %s", string(out))
	return path
}

func TestExtractWordsEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	testVideoPath := makeTestClip(t)

	// Start PostgreSQL container
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ container
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Start MinIO container
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Start Redis container
	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	redisOpts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()

	// Stub OCR endpoint
	ocrSrv := stubOCRServer(t, "Hello World hello 123 vip")
	defer ocrSrv.Close()

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// Setup MinIO storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:       minioEndpoint,
		AccessKey:      "minioadmin",
		SecretKey:      "minioadmin",
		UseSSL:         false,
		UploadBucket:   "uploads",
		WordListBucket: "wordlists",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	videoKey := "testuser/test.mp4"
	_, err = minioClient.FPutObject(ctx, "uploads", videoKey, testVideoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	// Setup RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "vidlex.extraction")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "extraction.request.dlq")

	// Setup DB pool
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	// Setup use case
	log, _ := logger.New("debug")
	repo := postgres.NewJobRepository(pool)
	sampler := ffmpeg.NewSampler("jpg", 5, 30*time.Second, log)
	recognizer := vision.NewClient(ocrSrv.URL, "", "test-model", 10*time.Second, log)
	exclusions := redisstore.NewExclusionStore(redisClient, "vidlex:excluded_words", log)
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	// Persist an exclusion so the run exercises the store
	require.NoError(t, exclusions.Save(ctx, []string{"vip"}))

	uc := usecase.NewExtractWordsUseCase(
		repo, storage, sampler, recognizer, exclusions,
		statusPub, dlqPub, notifier,
		log,
		usecase.ExtractWordsConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
		},
	)

	// Setup consumer
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "extraction.request",
		Exchange:    "vidlex.extraction",
		DLQ:         "extraction.request.dlq",
		StatusQueue: "extraction.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)

	// Publish extraction request
	jobID := uuid.New()
	videoInfo, _ := os.Stat(testVideoPath)
	requestMsg := entity.ExtractionRequestMessage{
		JobID:        jobID,
		UserID:       "testuser",
		VideoKey:     videoKey,
		StartSeconds: 0,
		EndSeconds:   2,
		FileSize:     videoInfo.Size(),
		UserEmail:    "test@test.local",
	}
	msgBody, err := json.Marshal(requestMsg)
	require.NoError(t, err)

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"vidlex.extraction",
		"extraction.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait for status message
	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume("extraction.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var statusMsg entity.ExtractionStatusMessage
	select {
	case delivery := <-statusMsgs:
		err = json.Unmarshal(delivery.Body, &statusMsg)
		require.NoError(t, err)
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	// Assert status
	assert.Equal(t, jobID, statusMsg.JobID)
	assert.Equal(t, entity.JobStatusCompleted, statusMsg.Status)
	assert.Equal(t, 3, statusMsg.FrameCount)
	assert.NotEmpty(t, statusMsg.WordListKey)

	// Verify the CSV in MinIO: numeric token dropped, "vip" excluded,
	// case folded, deduplicated, sorted
	csvObj, err := minioClient.GetObject(ctx, "wordlists", statusMsg.WordListKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	csvBody, err := io.ReadAll(csvObj)
	require.NoError(t, err)
	assert.Equal(t, "Extracted Words\nhello\nworld\n", string(csvBody))
	assert.True(t, strings.HasSuffix(statusMsg.WordListKey, "extracted_words.csv"))

	// Verify job record in database
	var dbStatus string
	var dbFrameCount, dbWordCount int
	err = pool.QueryRow(ctx,
		"SELECT status, frame_count, word_count FROM extraction_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrameCount, &dbWordCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 3, dbFrameCount)
	assert.Equal(t, 2, dbWordCount)

	consumerCancel()

	t.Logf("Test passed: %d frames sampled, word list at %s", statusMsg.FrameCount, statusMsg.WordListKey)
}

func TestExclusionListRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	defer client.Close()

	log, _ := logger.New("debug")
	store := redisstore.NewExclusionStore(client, "vidlex:excluded_words", log)

	// empty store falls back to defaults
	words, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, words, 19)
	assert.Contains(t, words, "the")

	// round trip canonicalizes
	require.NoError(t, store.Save(ctx, []string{" VIP ", "Score", "vip"}))
	words, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"score", "vip"}, words)

	// malformed persisted data falls back to defaults without failing
	require.NoError(t, client.Set(ctx, "vidlex:excluded_words", `{"not":"an array"}`, 0).Err())
	words, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, words, 19)
}

func TestConsumerSetupFailureReleasesConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	log, _ := logger.New("debug")

	// the amq.* prefix is reserved, so the queue declare is refused after
	// the connection is already open; the constructor must clean up
	_, err = rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "amq.reserved-name",
		Exchange:    "vidlex.extraction",
		DLQ:         "extraction.request.dlq",
		StatusQueue: "extraction.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, func(context.Context, []byte) error { return nil }, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declare queue")
}

func TestExtractWordsMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Start PostgreSQL
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Start MinIO (no video needed for this test)
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Start Redis
	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	redisOpts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()

	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:       minioEndpoint,
		AccessKey:      "minioadmin",
		SecretKey:      "minioadmin",
		UseSSL:         false,
		UploadBucket:   "uploads",
		WordListBucket: "wordlists",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	log, _ := logger.New("debug")
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "vidlex.extraction")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "extraction.request.dlq")

	ocrSrv := stubOCRServer(t, "")
	defer ocrSrv.Close()

	repo := postgres.NewJobRepository(pool)
	sampler := ffmpeg.NewSampler("jpg", 5, 30*time.Second, log)
	recognizer := vision.NewClient(ocrSrv.URL, "", "test-model", 10*time.Second, log)
	exclusions := redisstore.NewExclusionStore(redisClient, "vidlex:excluded_words", log)
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	uc := usecase.NewExtractWordsUseCase(
		repo, storage, sampler, recognizer, exclusions,
		statusPub, dlqPub, notifier,
		log,
		usecase.ExtractWordsConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "extraction.request",
		Exchange:    "vidlex.extraction",
		DLQ:         "extraction.request.dlq",
		StatusQueue: "extraction.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()
	time.Sleep(500 * time.Millisecond)

	// Publish malformed message
	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"vidlex.extraction",
		"extraction.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait and verify message landed in DLQ
	time.Sleep(2 * time.Second)

	dlqCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("extraction.request.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))

	consumerCancel()
	t.Log("Test passed: malformed message sent to DLQ")
}
