package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pdfme/transformer-service/pkg/paths"
	"github.com/pdfme/transformer-service/pkg/transform"
	"github.com/pdfme/transformer-service/pkg/types"
)

// Executor runs the transform for one input file.
type Executor interface {
	Execute(ctx context.Context, filePath string) (*transform.Result, error)
}

// ResultSink persists result tables and optionally uploads them.
type ResultSink interface {
	EnsureDir() error
	Path(name string) string
	Persist(tbl arrow.Table, dest string) error
	Uploads() bool
	UploadAndCleanup(ctx context.Context, requestID, key, localPath string) error
}

// StatusReporter notifies the coordinating service at endpoint.
type StatusReporter interface {
	ReportStart(ctx context.Context, endpoint, fileID string) error
	ReportComplete(ctx context.Context, endpoint, fileID string) error
	ReportFailure(ctx context.Context, endpoint, fileID, detail string) error
	ReportCompletionRecord(ctx context.Context, endpoint string, rec types.CompletionRecord) error
}

// FailurePublisher publishes dead-letter messages.
type FailurePublisher interface {
	PublishFailure(ctx context.Context, routingKey string, body []byte) error
}

// Ledger keeps best-effort bookkeeping of job progress.
type Ledger interface {
	JobStarted(ctx context.Context, req *types.TransformRequest) error
	JobFinished(ctx context.Context, req *types.TransformRequest, outcome types.Outcome) error
}

// Metrics receives job level observations.
type Metrics interface {
	ObserveJob(status, stage string, elapsed time.Duration)
	ObserveTransform(transform, serialization time.Duration)
	ReportFailed()
}

// FileProcessor drives one transform request from delivery to acknowledgment
type FileProcessor struct {
	executor  Executor
	sink      ResultSink
	reporter  StatusReporter
	publisher FailurePublisher
	ledgers   []Ledger
	metrics   Metrics
}

// Option configures a FileProcessor.
type Option func(*FileProcessor)

// WithLedger adds a ledger. Nil ledgers are ignored.
func WithLedger(l Ledger) Option {
	return func(p *FileProcessor) {
		if l != nil {
			p.ledgers = append(p.ledgers, l)
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *FileProcessor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// NewFileProcessor creates a new file processor
func NewFileProcessor(
	executor Executor,
	sink ResultSink,
	reporter StatusReporter,
	publisher FailurePublisher,
	opts ...Option,
) *FileProcessor {
	p := &FileProcessor{
		executor:  executor,
		sink:      sink,
		reporter:  reporter,
		publisher: publisher,
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes one delivery and acknowledges it on every path, including
// malformed messages and failed jobs, so no message is redelivered by this
// worker.
func (p *FileProcessor) Handle(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if err := msg.Ack(false); err != nil {
			slog.Error("failed to ack message", "delivery_tag", msg.DeliveryTag, "error", err)
		}
	}()

	req, err := types.DecodeRequest(msg.Body)
	if err != nil {
		slog.Error("dropping message", "delivery_tag", msg.DeliveryTag, "error", err)
		p.metrics.ObserveJob(string(types.CompletionFailure), string(StageDecode), 0)
		return
	}

	p.Process(ctx, req, msg.Body)
}

// Process runs a decoded request to a terminal report. body is the original
// message, used for the dead-letter copy. The returned error is the failure
// that was reported, if any.
func (p *FileProcessor) Process(ctx context.Context, req *types.TransformRequest, body []byte) error {
	logger := slog.With("request_id", req.RequestID, "file_id", req.FileID, "file_path", req.FilePath)
	logger.Info("received transform request")

	tick := time.Now()

	// Step 1: Start report
	if err := p.reporter.ReportStart(ctx, req.ServiceEndpoint, req.FileID); err != nil {
		p.reportFailed(logger, "start", err)
	}
	for _, l := range p.ledgers {
		if err := l.JobStarted(ctx, req); err != nil {
			logger.Warn("ledger start failed", "error", err)
		}
	}

	// Step 2-4: Transform, persist, upload
	res, err := p.runStages(ctx, logger, req)
	if err != nil {
		p.fail(ctx, logger, req, body, err, time.Since(tick))
		return err
	}

	// Step 5: Terminal reports
	elapsed := time.Since(tick)
	if err := p.reporter.ReportComplete(ctx, req.ServiceEndpoint, req.FileID); err != nil {
		p.reportFailed(logger, "complete", err)
	}

	totalTime := types.RoundSeconds(elapsed.Seconds())
	rec := types.CompletionRecord{
		FilePath:  req.FilePath,
		FileID:    req.FileID,
		Status:    types.CompletionSuccess,
		TotalTime: totalTime,
	}
	if err := p.reporter.ReportCompletionRecord(ctx, req.ServiceEndpoint, rec); err != nil {
		p.reportFailed(logger, "file-complete", err)
	}

	p.finish(ctx, logger, req, types.Outcome{
		Status:     types.CompletionSuccess,
		OutputName: res.name,
		TotalTime:  totalTime,
		Rows:       res.rows,
	})
	p.metrics.ObserveJob(string(types.CompletionSuccess), "", elapsed)

	logger.Info("transform succeeded", "output", res.name, "rows", res.rows, "seconds", totalTime)
	return nil
}

type stageResult struct {
	name string
	rows int64
}

// runStages executes transform, persist and upload. Every error is a
// *StageError naming the stage that failed.
func (p *FileProcessor) runStages(ctx context.Context, logger *slog.Logger, req *types.TransformRequest) (res stageResult, err error) {
	stage := StageTransform
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	name := paths.OutputName(req.FilePath)

	result, err := p.executor.Execute(ctx, req.FilePath)
	if err != nil {
		return res, &StageError{Stage: StageTransform, Err: err}
	}
	defer result.Release()
	p.metrics.ObserveTransform(result.TransformDuration, result.SerializationDuration)

	stage = StagePersist
	if err := p.sink.EnsureDir(); err != nil {
		return res, &StageError{Stage: StagePersist, Err: err}
	}
	localPath := p.sink.Path(name)
	if err := p.sink.Persist(result.Table, localPath); err != nil {
		return res, &StageError{Stage: StagePersist, Err: err}
	}
	logger.Debug("result persisted", "path", localPath)

	if p.sink.Uploads() {
		stage = StageUpload
		if err := p.sink.UploadAndCleanup(ctx, req.RequestID, name, localPath); err != nil {
			return res, &StageError{Stage: StageUpload, Err: err}
		}
	}

	return stageResult{name: name, rows: result.Table.NumRows()}, nil
}

// fail dead-letters the request and sends the failure reports.
func (p *FileProcessor) fail(ctx context.Context, logger *slog.Logger, req *types.TransformRequest, body []byte, err error, elapsed time.Duration) {
	stage := StageOf(err)
	errText := err.Error()
	logger.Error("transform failed", "stage", stage, "error", errText)

	deadLetter, marshalErr := types.WithError(body, errText)
	if marshalErr != nil {
		logger.Error("failed to build dead-letter message", "error", marshalErr)
	} else if pubErr := p.publisher.PublishFailure(ctx, types.FailureRoutingKey(req.RequestID), deadLetter); pubErr != nil {
		logger.Error("failed to publish dead-letter message", "error", pubErr)
	}

	if rerr := p.reporter.ReportFailure(ctx, req.ServiceEndpoint, req.FileID, errText); rerr != nil {
		p.reportFailed(logger, "failure", rerr)
	}

	rec := types.CompletionRecord{
		FilePath: req.FilePath,
		FileID:   req.FileID,
		Status:   types.CompletionFailure,
	}
	if rerr := p.reporter.ReportCompletionRecord(ctx, req.ServiceEndpoint, rec); rerr != nil {
		p.reportFailed(logger, "file-complete", rerr)
	}

	p.finish(ctx, logger, req, types.Outcome{
		Status: types.CompletionFailure,
		Error:  errText,
	})
	p.metrics.ObserveJob(string(types.CompletionFailure), string(stage), elapsed)
}

func (p *FileProcessor) finish(ctx context.Context, logger *slog.Logger, req *types.TransformRequest, outcome types.Outcome) {
	for _, l := range p.ledgers {
		if err := l.JobFinished(ctx, req, outcome); err != nil {
			logger.Warn("ledger finish failed", "error", err)
		}
	}
}

func (p *FileProcessor) reportFailed(logger *slog.Logger, call string, err error) {
	logger.Warn("status report failed", "call", call, "error", err)
	p.metrics.ReportFailed()
}

type noopMetrics struct{}

func (noopMetrics) ObserveJob(string, string, time.Duration) {}

func (noopMetrics) ObserveTransform(time.Duration, time.Duration) {}

func (noopMetrics) ReportFailed() {}
