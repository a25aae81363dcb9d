package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/config"
)

// Registrar is the part of a Temporal worker the workflows are registered on.
type Registrar interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// Register adds the workflows and activities to r.
func Register(r Registrar, acts *Activities) {
	r.RegisterWorkflow(ScanWorkflow)
	r.RegisterWorkflow(ProcessWorkflow)
	r.RegisterActivity(acts)
}

// Dial connects to the Temporal frontend.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewLogger(zap.L().With(zap.String("component", "temporal"))),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "worker: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// Run polls the task queue until ctx is cancelled.
func Run(ctx context.Context, c client.Client, taskQueue string, acts *Activities) error {
	w := sdkworker.New(c, taskQueue, sdkworker.Options{})
	Register(w, acts)

	stop := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	zap.L().Info("worker: polling", zap.String("task_queue", taskQueue))
	if err := w.Run(stop); err != nil {
		return eris.Wrap(err, "worker: run")
	}
	return nil
}

// EnqueueScan starts a ScanWorkflow and returns its workflow and run ids.
func EnqueueScan(ctx context.Context, c client.Client, taskQueue string, in ScanInput) (string, string, error) {
	id := fmt.Sprintf("scan-%s-%d", strings.Join(in.Exams, "-"), time.Now().Unix())
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{ID: id, TaskQueue: taskQueue}, ScanWorkflow, in)
	if err != nil {
		return "", "", eris.Wrap(err, "worker: start scan workflow")
	}
	return run.GetID(), run.GetRunID(), nil
}

// EnqueueProcess starts a ProcessWorkflow and returns its workflow and run ids.
func EnqueueProcess(ctx context.Context, c client.Client, taskQueue string, in ProcessInput) (string, string, error) {
	exam := in.ExamCode
	if exam == "" {
		exam = "all"
	}
	id := fmt.Sprintf("process-%s-%d", exam, time.Now().Unix())
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{ID: id, TaskQueue: taskQueue}, ProcessWorkflow, in)
	if err != nil {
		return "", "", eris.Wrap(err, "worker: start process workflow")
	}
	return run.GetID(), run.GetRunID(), nil
}

// Logger adapts zap to the Temporal SDK logger.
type Logger struct {
	s *zap.SugaredLogger
}

var _ tlog.Logger = (*Logger)(nil)

// NewLogger wraps l.
func NewLogger(l *zap.Logger) *Logger {
	return &Logger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Debug implements log.Logger.
func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }

// Info implements log.Logger.
func (l *Logger) Info(msg string, keyvals ...interface{}) { l.s.Infow(msg, keyvals...) }

// Warn implements log.Logger.
func (l *Logger) Warn(msg string, keyvals ...interface{}) { l.s.Warnw(msg, keyvals...) }

// Error implements log.Logger.
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }

// With implements log.WithLogger.
func (l *Logger) With(keyvals ...interface{}) tlog.Logger {
	return &Logger{s: l.s.With(keyvals...)}
}
