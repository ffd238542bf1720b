package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// DefaultJobRetention is the number of runs kept per job name.
const DefaultJobRetention = 50

// timerDurationKey marks a record emitted by StopTimer. The persisting
// handler stores such records as timeEnd entries.
const timerDurationKey = "timer_duration"

// JobFunc is the body of a traced job.
type JobFunc func(ctx context.Context, log *JobLogger) error

// JobLogger is the logger handed to a job body. Records are persisted against
// the current run and mirrored to process output.
type JobLogger struct {
	*slog.Logger

	now    func() time.Time
	mu     sync.Mutex
	timers map[string]time.Time
}

// NewJobLogger wraps logger for use outside a traced run, e.g. in tests.
func NewJobLogger(logger *slog.Logger) *JobLogger {
	return &JobLogger{
		Logger: logger,
		now:    time.Now,
		timers: make(map[string]time.Time),
	}
}

// StartTimer starts the named timer. Restarting an active timer logs a warning
// and resets it.
func (l *JobLogger) StartTimer(label string) {
	l.mu.Lock()
	_, active := l.timers[label]
	l.timers[label] = l.now()
	l.mu.Unlock()

	if active {
		l.Warn(fmt.Sprintf("Timer '%s' started again without end.", label))
	}
}

// StopTimer records the elapsed time of the named timer as a timeEnd entry.
func (l *JobLogger) StopTimer(label string) {
	l.mu.Lock()
	started, ok := l.timers[label]
	delete(l.timers, label)
	l.mu.Unlock()

	if !ok {
		l.Warn(fmt.Sprintf("Timer '%s' ended without start.", label))
		return
	}

	l.LogAttrs(context.Background(), slog.LevelInfo,
		fmt.Sprintf("Timer '%s' ended.", label),
		slog.Duration(timerDurationKey, l.now().Sub(started)),
	)
}

// closeTimers warns about every timer still open at the end of a run.
func (l *JobLogger) closeTimers() {
	l.mu.Lock()
	open := l.timers
	l.timers = make(map[string]time.Time)
	l.mu.Unlock()

	now := l.now()
	for label, started := range open {
		l.Warn(fmt.Sprintf("Timer '%s' was never ended.", label), "elapsed", now.Sub(started).Round(time.Millisecond))
	}
}

// JobTracer wraps job bodies with run bookkeeping: a persisted JobRun row,
// captured logs, a span, metrics and retention.
type JobTracer struct {
	runs      driven.JobRunStore
	misc      driven.MiscStore
	observer  driven.JobObserver
	fallback  slog.Handler
	retention int
	tracer    trace.Tracer
	now       func() time.Time
}

// NewJobTracer creates a JobTracer. observer may be nil. fallback receives a
// copy of every record and any record whose persistence failed.
func NewJobTracer(
	runs driven.JobRunStore,
	misc driven.MiscStore,
	observer driven.JobObserver,
	fallback slog.Handler,
	retention int,
) *JobTracer {
	if retention <= 0 {
		retention = DefaultJobRetention
	}

	return &JobTracer{
		runs:      runs,
		misc:      misc,
		observer:  observer,
		fallback:  fallback,
		retention: retention,
		tracer:    otel.Tracer("github.com/nanocasa/casa/internal/application"),
		now:       time.Now,
	}
}

// Run executes body as a traced run of the named job. The returned error is
// the body's error (or recovered panic); bookkeeping failures after the run
// started are logged and do not change the outcome.
func (t *JobTracer) Run(ctx context.Context, name string, body JobFunc) error {
	startedAt := t.now().UTC()

	runID, err := t.runs.Start(ctx, name, startedAt)
	if err != nil {
		return fmt.Errorf("start job run %s: %w", name, err)
	}

	handler := &persistHandler{
		store:    t.runs,
		runID:    runID,
		fallback: t.fallback.WithAttrs([]slog.Attr{slog.String("job", name), slog.Int64("run_id", runID)}),
	}
	log := NewJobLogger(slog.New(handler))
	log.now = t.now

	spanCtx, span := t.tracer.Start(ctx, "casa/job."+name, trace.WithAttributes(
		attribute.String("job.name", name),
		attribute.Int64("job.run_id", runID),
	))

	runErr := invoke(spanCtx, body, log)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	} else {
		span.SetStatus(codes.Ok, "job completed")
	}
	span.End()

	log.closeTimers()

	endedAt := t.now().UTC()
	run := model.JobRun{
		ID:        runID,
		JobName:   name,
		StartedAt: startedAt,
		EndedAt:   &endedAt,
		Status:    model.JobStatusSuccess,
		Duration:  endedAt.Sub(startedAt),
	}
	if runErr != nil {
		run.Status = model.JobStatusFailure
		run.Error = runErr.Error()
		log.Error("job failed", "error", runErr)
	}

	// Bookkeeping must survive a cancelled job context.
	bookCtx := context.WithoutCancel(ctx)

	if err := t.runs.Finish(bookCtx, run); err != nil {
		slog.Error("failed to finish job run", "job", name, "run_id", runID, "error", err)
	}

	if run.Status == model.JobStatusSuccess {
		if err := t.recordLastRun(bookCtx, name, startedAt); err != nil {
			slog.Error("failed to record last run", "job", name, "error", err)
		}
	}

	if t.observer != nil {
		t.observer.ObserveJob(run)
	}

	if pruned, err := t.runs.Prune(bookCtx, name, t.retention); err != nil {
		slog.Error("failed to prune job runs", "job", name, "error", err)
	} else if pruned > 0 {
		slog.Debug("pruned job runs", "job", name, "deleted", pruned)
	}

	return runErr
}

// recordLastRun stores the start of the latest successful run as a JSON
// timestamp. Work started before it is covered by that run.
func (t *JobTracer) recordLastRun(ctx context.Context, name string, startedAt time.Time) error {
	value, err := json.Marshal(startedAt)
	if err != nil {
		return err
	}
	return t.misc.Set(ctx, model.LastRunKey(name), string(value))
}

// invoke runs body and converts a panic into an error.
func invoke(ctx context.Context, body JobFunc, log *JobLogger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return body(ctx, log)
}

// persistHandler is a slog.Handler that stores records as LogEntry rows of
// one job run and forwards them to a fallback handler.
type persistHandler struct {
	store    driven.JobRunStore
	runID    int64
	fallback slog.Handler
	attrs    []slog.Attr
	groups   []string
}

func (h *persistHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.fallback.Enabled(ctx, level)
}

func (h *persistHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := model.LogEntry{
		JobRunID:  h.runID,
		Timestamp: r.Time.UTC(),
		Level:     levelOf(r.Level),
	}

	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == timerDurationKey && a.Value.Kind() == slog.KindDuration {
			d := a.Value.Duration()
			entry.Duration = &d
			entry.Level = model.LogLevelTimeEnd
			return true
		}
		writeAttr(&b, prefix, a)
		return true
	})
	entry.Message = b.String()

	if err := h.store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		failure := slog.NewRecord(time.Now(), slog.LevelError, "failed to persist job log", 0)
		failure.AddAttrs(slog.String("error", err.Error()))
		_ = h.fallback.Handle(ctx, failure)
		return h.fallback.Handle(ctx, r)
	}

	if !h.fallback.Enabled(ctx, r.Level) {
		return nil
	}
	return h.fallback.Handle(ctx, r)
}

func (h *persistHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), qualify(h.groups, attrs)...)
	clone.fallback = h.fallback.WithAttrs(attrs)
	return &clone
}

func (h *persistHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	clone.fallback = h.fallback.WithGroup(name)
	return &clone
}

// qualify resolves attrs added after WithGroup into fully qualified keys, so
// later groups do not apply to them again.
func qualify(groups []string, attrs []slog.Attr) []slog.Attr {
	if len(groups) == 0 {
		return attrs
	}
	prefix := strings.Join(groups, ".")
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, slog.Attr{Key: prefix + "." + a.Key, Value: a.Value})
	}
	return out
}

// writeAttr appends " key=value", flattening groups into dotted keys.
func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	switch {
	case prefix != "" && key != "":
		key = prefix + "." + key
	case prefix != "":
		key = prefix
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

func levelOf(level slog.Level) model.LogLevel {
	switch {
	case level >= slog.LevelError:
		return model.LogLevelError
	case level >= slog.LevelWarn:
		return model.LogLevelWarn
	default:
		return model.LogLevelLog
	}
}
