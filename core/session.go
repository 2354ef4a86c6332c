package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/sightline/internal/logging"
	"github.com/signalsfoundry/sightline/model"
)

const tracerName = "github.com/signalsfoundry/sightline/core"

// PairStatus is the result state of one observer–target pair.
type PairStatus int

const (
	PairClassified PairStatus = iota
	PairDegenerate
	PairFailed
)

func (s PairStatus) String() string {
	switch s {
	case PairClassified:
		return "classified"
	case PairDegenerate:
		return "degenerate"
	default:
		return "failed"
	}
}

// SessionTarget is a target whose position has already been resolved.
type SessionTarget struct {
	ID       string
	Name     string
	Position Point3
}

// PairResult is the outcome for one target of a session. Classification is
// nil unless Status is PairClassified; Err is set otherwise.
type PairResult struct {
	Index      int
	Label      string
	TargetID   string
	TargetName string
	Observer   Point3
	Target     Point3

	Status         PairStatus
	Classification *SegmentClassification
	Err            error

	SlantRange   float64
	ElevationDeg float64
	Duration     time.Duration
}

// Outcome returns the metric label for the pair.
func (p PairResult) Outcome() string {
	if p.Status == PairClassified && p.Classification != nil {
		return p.Classification.Outcome.String()
	}
	return p.Status.String()
}

// SessionResult holds per-target results in input order.
type SessionResult struct {
	SessionID string
	Observer  Point3
	Pairs     []PairResult
	Summary   Summary
	Started   time.Time
	Duration  time.Duration
}

// Classified returns the successful pairs, in target order.
func (r *SessionResult) Classified() []PairResult {
	out := make([]PairResult, 0, len(r.Pairs))
	for _, p := range r.Pairs {
		if p.Status == PairClassified {
			out = append(out, p)
		}
	}
	return out
}

// Failures returns the pairs that produced no classification, in target order.
func (r *SessionResult) Failures() []PairResult {
	var out []PairResult
	for _, p := range r.Pairs {
		if p.Status != PairClassified {
			out = append(out, p)
		}
	}
	return out
}

// MetricsRecorder receives per-pair and per-session observations.
type MetricsRecorder interface {
	ObservePair(outcome string, queryDuration time.Duration)
	ObserveSession(pairs int, duration time.Duration)
}

// Presenter consumes classified pairs, e.g. to render them.
type Presenter interface {
	Present(ctx context.Context, pair PairResult) error
}

// SessionRunner classifies every target of a session against one scene.
type SessionRunner struct {
	scene        SceneQuery
	classifier   *Classifier
	log          logging.Logger
	metrics      MetricsRecorder
	presenter    Presenter
	workers      int
	queryTimeout time.Duration
	tracer       trace.Tracer
}

// SessionOption configures a SessionRunner.
type SessionOption func(*SessionRunner)

// WithWorkers sets how many pairs are classified concurrently. Values below
// one select runtime.NumCPU().
func WithWorkers(n int) SessionOption {
	return func(r *SessionRunner) { r.workers = n }
}

// WithQueryTimeout bounds each individual scene query.
func WithQueryTimeout(d time.Duration) SessionOption {
	return func(r *SessionRunner) { r.queryTimeout = d }
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *Classifier) SessionOption {
	return func(r *SessionRunner) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(log logging.Logger) SessionOption {
	return func(r *SessionRunner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetricsRecorder wires a metrics sink.
func WithMetricsRecorder(m MetricsRecorder) SessionOption {
	return func(r *SessionRunner) { r.metrics = m }
}

// WithPresenter wires a presentation adapter. It receives every classified
// pair in target order once the session completes.
func WithPresenter(p Presenter) SessionOption {
	return func(r *SessionRunner) { r.presenter = p }
}

// NewSessionRunner constructs a runner bound to scene.
func NewSessionRunner(scene SceneQuery, opts ...SessionOption) *SessionRunner {
	r := &SessionRunner{
		scene:      scene,
		classifier: NewClassifier(),
		log:        logging.Noop(),
		workers:    1,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.workers < 1 {
		r.workers = runtime.NumCPU()
	}
	return r
}

// RunSession resolves the observer and targets at epoch and classifies every
// pair. A target whose position cannot be resolved is reported as a failed
// pair; an unresolvable observer fails the whole session.
func (r *SessionRunner) RunSession(ctx context.Context, observer model.Observer, targets []model.Target, epoch time.Time) (*SessionResult, error) {
	obsPos, err := ResolvePosition(observer.Site, epoch)
	if err != nil {
		return nil, fmt.Errorf("resolve observer: %w", err)
	}

	resolved := make([]SessionTarget, len(targets))
	unresolved := make(map[int]error)
	for i, t := range targets {
		resolved[i] = SessionTarget{ID: t.ID, Name: t.Name}
		pos, err := ResolvePosition(t.Site, epoch)
		if err != nil {
			unresolved[i] = err
			continue
		}
		resolved[i].Position = pos
	}

	return r.run(ctx, obsPos, resolved, unresolved)
}

// Run classifies each target against observer. Per-pair failures never stop
// the session; the returned error is non-nil only when ctx ends before every
// pair completes, in which case the result still holds all finished pairs.
func (r *SessionRunner) Run(ctx context.Context, observer Point3, targets []SessionTarget) (*SessionResult, error) {
	return r.run(ctx, observer, targets, nil)
}

func (r *SessionRunner) run(ctx context.Context, observer Point3, targets []SessionTarget, unresolved map[int]error) (*SessionResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, log := logging.WithSessionLogger(ctx, r.log)
	sessionID := logging.SessionIDFromContext(ctx)

	ctx, span := r.tracer.Start(ctx, "sightline.Session", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("targets", len(targets)),
		attribute.Int("workers", r.workers),
	))
	defer span.End()

	start := time.Now()
	results := make([]PairResult, len(targets))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, tgt := range targets {
		if err, ok := unresolved[i]; ok {
			results[i] = r.unresolvedPair(ctx, log, i, observer, tgt, err)
			continue
		}
		i, tgt := i, tgt
		g.Go(func() error {
			results[i] = r.classifyPair(ctx, log, i, observer, tgt)
			return nil
		})
	}
	_ = g.Wait()

	res := &SessionResult{
		SessionID: sessionID,
		Observer:  observer,
		Pairs:     results,
		Summary:   Summarize(results),
		Started:   start,
		Duration:  time.Since(start),
	}
	if r.metrics != nil {
		r.metrics.ObserveSession(len(results), res.Duration)
	}

	span.SetAttributes(
		attribute.Int("visible", res.Summary.Visible),
		attribute.Int("occluded", res.Summary.Occluded),
		attribute.Int("failed", res.Summary.Failed+res.Summary.Degenerate),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "session cancelled",
			logging.Int("targets", len(targets)),
			logging.Int("classified", res.Summary.Visible+res.Summary.Occluded),
			logging.Err(err),
		)
		return res, err
	}

	r.present(ctx, log, res)

	log.Info(ctx, "session complete",
		logging.Int("targets", len(targets)),
		logging.Int("visible", res.Summary.Visible),
		logging.Int("occluded", res.Summary.Occluded),
		logging.Int("degenerate", res.Summary.Degenerate),
		logging.Int("failed", res.Summary.Failed),
		logging.Duration("duration", res.Duration),
	)
	return res, nil
}

func (r *SessionRunner) classifyPair(ctx context.Context, log logging.Logger, i int, observer Point3, tgt SessionTarget) PairResult {
	pr := newPairResult(i, observer, tgt)

	if r.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()
	}
	ctx, span := r.tracer.Start(ctx, "sightline.Pair", trace.WithAttributes(
		attribute.Int("index", i),
		attribute.String("label", pr.Label),
		attribute.String("target_id", tgt.ID),
	))
	defer span.End()

	start := time.Now()
	ray, err := BuildRay(observer, tgt.Position)
	if err != nil {
		pr.Status = PairFailed
		if errors.Is(err, ErrDegenerateSegment) {
			pr.Status = PairDegenerate
		}
		pr.Err = err
		r.recordFailure(ctx, log, span, pr)
		return pr
	}

	cls, err := r.classifier.Classify(ctx, ray, tgt.Position, r.scene)
	pr.Duration = time.Since(start)
	if err != nil {
		pr.Status = PairFailed
		pr.Err = err
		r.recordFailure(ctx, log, span, pr)
		return pr
	}

	pr.Status = PairClassified
	pr.Classification = &cls
	span.SetAttributes(attribute.String("outcome", cls.Outcome.String()))
	if r.metrics != nil {
		r.metrics.ObservePair(pr.Outcome(), pr.Duration)
	}
	log.Debug(ctx, "pair classified",
		logging.String("target", pr.Label),
		logging.String("outcome", cls.Outcome.String()),
		logging.Float("visible_fraction", cls.VisibleFraction()),
	)
	return pr
}

func (r *SessionRunner) unresolvedPair(ctx context.Context, log logging.Logger, i int, observer Point3, tgt SessionTarget, err error) PairResult {
	pr := newPairResult(i, observer, tgt)
	pr.SlantRange, pr.ElevationDeg = 0, 0
	pr.Status = PairFailed
	pr.Err = err
	log.Warn(ctx, "target position unresolved",
		logging.String("target", pr.Label),
		logging.String("target_id", tgt.ID),
		logging.Int("index", i),
		logging.Err(err),
	)
	if r.metrics != nil {
		r.metrics.ObservePair(pr.Outcome(), 0)
	}
	return pr
}

func (r *SessionRunner) recordFailure(ctx context.Context, log logging.Logger, span trace.Span, pr PairResult) {
	span.RecordError(pr.Err)
	span.SetStatus(codes.Error, pr.Err.Error())
	if r.metrics != nil {
		r.metrics.ObservePair(pr.Outcome(), pr.Duration)
	}
	log.Warn(ctx, "pair not classified",
		logging.String("target", pr.Label),
		logging.String("target_id", pr.TargetID),
		logging.Int("index", pr.Index),
		logging.String("status", pr.Status.String()),
		logging.Err(pr.Err),
	)
}

func (r *SessionRunner) present(ctx context.Context, log logging.Logger, res *SessionResult) {
	if r.presenter == nil {
		return
	}
	var errs []error
	for _, pr := range res.Pairs {
		if pr.Status != PairClassified {
			continue
		}
		if err := r.presenter.Present(ctx, pr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pr.Label, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn(ctx, "presentation failed", logging.Err(err))
	}
}

// newPairResult fills the pair metadata. Range and elevation stay zero when
// either endpoint is not finite.
func newPairResult(i int, observer Point3, tgt SessionTarget) PairResult {
	pr := PairResult{
		Index:      i,
		Label:      fmt.Sprintf("Target %d", i+1),
		TargetID:   tgt.ID,
		TargetName: tgt.Name,
		Observer:   observer,
		Target:     tgt.Position,
	}
	if observer.IsFinite() && tgt.Position.IsFinite() {
		pr.SlantRange = SlantRange(observer, tgt.Position)
		pr.ElevationDeg = ElevationDegrees(observer, tgt.Position)
	}
	return pr
}
