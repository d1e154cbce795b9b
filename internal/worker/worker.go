// Package worker contains methods for worker to init at start, and to process watermark tasks
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/UnendingLoop/Watermarker/internal/imageproc"
	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/UnendingLoop/Watermarker/internal/mwlogger"
	"github.com/UnendingLoop/Watermarker/internal/service"
	"github.com/UnendingLoop/Watermarker/internal/storage"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// in_progress tasks untouched for this long are considered abandoned by a dead worker
const staleAfter = 10 * time.Minute

var errJobTimeout = errors.New("watermark job timed out")

// states of one engine call, see runEngine
const (
	engineRunning int32 = iota
	engineFinished
	engineAbandoned
)

// Serializer lets at most one engine call run at a time among the workers sharing it.
// A nil Serializer does not limit anything.
type Serializer chan struct{}

func NewSerializer() Serializer {
	return make(Serializer, 1)
}

// acquire waits for the slot or for ctx to end.
func (s Serializer) acquire(ctx context.Context) error {
	if s == nil {
		return nil
	}
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Serializer) release() {
	if s != nil {
		<-s
	}
}

// NoopPublisher - ЗАГЛУШКА, функциональность настоящего паблишера в очередь не нужна в рамках работы воркера
type NoopPublisher struct{}

func (NoopPublisher) SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error {
	return nil
}

type TaskWorkerService interface { // дублируется из cmd/worker
	UpdateStatus(ctx context.Context, id string, newStat model.Status) error
	SaveResult(ctx context.Context, res *model.Task) error
	SaveFailure(ctx context.Context, id string, reason string) error
	Get(ctx context.Context, id string) (*model.Task, error)
}

// Engine composites a watermark over a base image file, see imageproc.Engine.
type Engine interface {
	ProcessImages(basePath, overlayPath, outputDir string, opacity float64) (string, error)
}

type Committer interface {
	Commit(ctx context.Context, msg kafkago.Message) error
}

type Config struct {
	TempDir    string
	JobTimeout time.Duration
	// Serializer, when set, is held around every engine call. Share one between workers to
	// run at most one compositing job at a time.
	Serializer Serializer
}

type Worker struct {
	storage    service.ImageStorage
	service    TaskWorkerService
	engine     Engine
	queue      <-chan kafkago.Message
	consumer   Committer
	tempDir    string
	jobTimeout time.Duration
	serializer Serializer
}

func NewWorkerInstance(strg service.ImageStorage, svc TaskWorkerService, eng Engine, q <-chan kafkago.Message, cons Committer, cfg Config) *Worker {
	return &Worker{
		storage:    strg,
		service:    svc,
		engine:     eng,
		queue:      q,
		consumer:   cons,
		tempDir:    cfg.TempDir,
		jobTimeout: cfg.JobTimeout,
		serializer: cfg.Serializer,
	}
}

func (w *Worker) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.queue:
			if !ok {
				zlog.Logger.Info().Msg("Queue channel closed, stopping worker...")
				return
			}
			id := string(msg.Key)
			if err := w.initProcessor(ctx, id); err != nil && !errors.Is(err, model.ErrTaskNotFound) {
				zlog.Logger.Error().Err(err).Str("task_id", id).Msg("Task failed")
				continue
			}
			if err := w.consumer.Commit(ctx, msg); err != nil {
				zlog.Logger.Error().Err(err).Str("task_id", id).Msg("Failed to commit queue-message")
			}
		}
	}
}

// initProcessor runs one task. A task that fails in processing is recorded as failed and
// is not an error here; errors mean the task state could not be read or written.
func (w *Worker) initProcessor(ctx context.Context, id string) error {
	// считать из базы задачу
	task, err := w.service.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("worker failed to fetch task %q from DB: %w", id, err)
	}
	// проверить статус
	switch task.Status {
	case model.StatusDone, model.StatusFailed:
		return nil
	case model.StatusInProgress:
		if task.UpdatedAt != nil && time.Since(*task.UpdatedAt) < staleAfter {
			return fmt.Errorf("task %q is already in progress", id)
		}
	}

	// обновить статус
	if err := w.service.UpdateStatus(ctx, id, model.StatusInProgress); err != nil {
		return fmt.Errorf("failed to update status of task %q to `in_progress` in DB: %w", id, err)
	}

	ctx = mwlogger.WithTask(ctx, id, task.ServerID, task.ChannelID)
	logger := mwlogger.LoggerFromContext(ctx)

	// выполняем саму операцию
	if pErr := w.processTask(ctx, task); pErr != nil {
		if ctx.Err() != nil {
			// shutting down: the message stays uncommitted and the task is picked up again
			return fmt.Errorf("task %q interrupted: %w", id, pErr)
		}
		reason := failureReason(pErr)
		logEvent := logger.Error().Err(pErr)
		var procErr *imageproc.ProcessError
		if errors.As(pErr, &procErr) {
			logEvent = logEvent.Str("kind", procErr.Kind.Error()).Str("stage", string(procErr.Stage))
		}
		logEvent.Msg("Watermark task failed")

		w.quarantine(ctx, task)
		if sErr := w.service.SaveFailure(ctx, id, reason); sErr != nil {
			return fmt.Errorf("failed to set status of task %q to `failed` in DB: %w \nAFTER\n error while processing task: %w", id, sErr, pErr)
		}
		return nil
	}

	logger.Info().Str("result", task.ResultKey).Msg("Watermark task done")
	return nil
}

func (w *Worker) processTask(ctx context.Context, task *model.Task) error {
	workDir := filepath.Join(w.tempDir, task.UID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("worker failed to create temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger := mwlogger.LoggerFromContext(ctx)
			logger.Warn().Err(err).Str("dir", workDir).Msg("Failed to remove temp dir")
		}
	}
	// an abandoned engine call still writes into workDir and removes it itself when done
	handedOff := false
	defer func() {
		if !handedOff {
			cleanup()
		}
	}()

	// достать из storage исходники
	basePath := filepath.Join(workDir, "source"+path.Ext(task.SourceKey))
	if err := w.download(ctx, task.SourceKey, basePath); err != nil {
		return fmt.Errorf("worker failed to fetch base-image: %w", err)
	}
	overlayPath := filepath.Join(workDir, "overlay"+path.Ext(task.WatermarkKey))
	if err := w.download(ctx, task.WatermarkKey, overlayPath); err != nil {
		return fmt.Errorf("worker failed to fetch watermark: %w", err)
	}

	// выполнить операцию
	out, abandoned, err := w.runEngine(ctx, basePath, overlayPath, filepath.Join(workDir, "out"), float64(task.Opacity)/100, cleanup)
	handedOff = abandoned
	if err != nil {
		return err
	}

	// положить результат в сторедж
	ext := filepath.Ext(out)
	resKey := storage.ResultPrefix + task.UID.String() + ext
	if err := w.upload(ctx, out, resKey, ctypeByExt(ext)); err != nil {
		return fmt.Errorf("worker failed to put result image to storage: %w", err)
	}

	task.Status = model.StatusDone
	task.ResultKey = resKey

	// обновить запись в БД
	if err := w.service.SaveResult(ctx, task); err != nil {
		return fmt.Errorf("worker failed to save result to DB: %w", err)
	}
	return nil
}

// runEngine calls the engine under the serializer and gives up after jobTimeout or when ctx
// ends. Time spent waiting for the serializer does not count against jobTimeout.
// The engine has no cancellation point: a call runEngine gave up on keeps running and holding
// the serializer, then runs onAbandon. abandoned reports that case.
func (w *Worker) runEngine(ctx context.Context, basePath, overlayPath, outDir string, opacity float64, onAbandon func()) (out string, abandoned bool, err error) {
	type result struct {
		path string
		err  error
	}

	if err := w.serializer.acquire(ctx); err != nil {
		return "", false, err
	}

	var state atomic.Int32
	done := make(chan result, 1)
	go func() {
		defer w.serializer.release()
		p, err := w.engine.ProcessImages(basePath, overlayPath, outDir, opacity)
		done <- result{path: p, err: err}
		if !state.CompareAndSwap(engineRunning, engineFinished) && onAbandon != nil {
			onAbandon()
		}
	}()

	var timeout <-chan time.Time
	if w.jobTimeout > 0 {
		timer := time.NewTimer(w.jobTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-done:
		return res.path, false, res.err
	case <-timeout:
		err = errJobTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	if !state.CompareAndSwap(engineRunning, engineAbandoned) {
		// finished right at the deadline
		res := <-done
		return res.path, false, res.err
	}
	return "", true, err
}

func (w *Worker) download(ctx context.Context, key, dst string) error {
	src, _, err := w.storage.Get(ctx, key)
	if err != nil {
		return err
	}
	defer closeFileFlow(ctx, src)

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		closeFileFlow(ctx, f)
		return err
	}
	return f.Close()
}

func (w *Worker) upload(ctx context.Context, src, key, cType string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer closeFileFlow(ctx, f)

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return w.storage.Put(ctx, key, info.Size(), cType, f)
}

// quarantine keeps a copy of the failing source for later inspection.
func (w *Worker) quarantine(ctx context.Context, task *model.Task) {
	if task.SourceKey == "" {
		return
	}
	key := storage.QuarantinePrefix + task.UID.String() + path.Ext(task.SourceKey)
	if err := w.storage.Copy(ctx, task.SourceKey, key); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Str("key", key).Msg("Failed to quarantine source image")
	}
}

// failureReason is what the task row keeps; engine failures name the file, not the temp path.
func failureReason(err error) string {
	var procErr *imageproc.ProcessError
	if !errors.As(err, &procErr) {
		return err.Error()
	}
	reason := fmt.Sprintf("%v at %s stage", procErr.Kind, procErr.Stage)
	if procErr.Path != "" {
		reason += fmt.Sprintf(" (%s)", filepath.Base(procErr.Path))
	}
	return reason
}

func ctypeByExt(ext string) string {
	if ct, ok := model.CTypeByExt[ext]; ok {
		return ct
	}
	return model.Octet
}

func closeFileFlow(ctx context.Context, res io.Closer) {
	if res == nil {
		return
	}

	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Worker failed to close fileflow")
	}
}
