package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/multichain-arb/business/arbitrage"
	meterName  = "github.com/fd1az/multichain-arb/business/arbitrage"
)

// DetectionReport is the merged output of all detectors for one snapshot.
type DetectionReport struct {
	Candidates []domain.Candidate
	Failures   map[string]error
	Duplicates int
}

type registeredDetector struct {
	detector Detector
	enabled  bool
}

// DetectorManager runs detectors concurrently and isolates their failures.
type DetectorManager struct {
	log     logger.LoggerInterface
	timeout time.Duration

	mu        sync.RWMutex
	detectors []registeredDetector

	tracer     trace.Tracer
	candidates metric.Int64Counter
	failures   metric.Int64Counter
}

// NewDetectorManager creates a manager. A positive timeout bounds each
// detector run.
func NewDetectorManager(log logger.LoggerInterface, timeout time.Duration, detectors ...Detector) *DetectorManager {
	m := &DetectorManager{
		log:     log,
		timeout: timeout,
		tracer:  otel.Tracer(tracerName),
	}
	meter := otel.Meter(meterName)
	m.candidates, _ = meter.Int64Counter("arbitrage_candidates_total",
		metric.WithDescription("Candidates proposed by detectors"))
	m.failures, _ = meter.Int64Counter("arbitrage_detector_failures_total",
		metric.WithDescription("Detector runs that failed or panicked"))

	for _, d := range detectors {
		m.Register(d)
	}
	return m
}

// Register adds an enabled detector. Output order follows registration order.
func (m *DetectorManager) Register(d Detector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectors = append(m.detectors, registeredDetector{detector: d, enabled: true})
}

// SetEnabled toggles a detector by name. It reports whether one was found.
func (m *DetectorManager) SetEnabled(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.detectors {
		if m.detectors[i].detector.Name() == name {
			m.detectors[i].enabled = enabled
			return true
		}
	}
	return false
}

// Names returns the enabled detectors.
func (m *DetectorManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, r := range m.detectors {
		if r.enabled {
			names = append(names, r.detector.Name())
		}
	}
	return names
}

// DetectAll runs every enabled detector against snap. A failing or
// panicking detector contributes nothing; the others are unaffected.
// DetectAll returns once ctx or the per-detector timeout expires even if a
// detector ignores its context; late output is discarded.
// Candidates keep registration order and the first of each fingerprint wins.
func (m *DetectorManager) DetectAll(ctx context.Context, snap *market.Snapshot) DetectionReport {
	ctx, span := m.tracer.Start(ctx, "arbitrage.detect_all")
	defer span.End()

	m.mu.RLock()
	var active []Detector
	for _, r := range m.detectors {
		if r.enabled {
			active = append(active, r.detector)
		}
	}
	m.mu.RUnlock()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	type result struct {
		i   int
		out []domain.Candidate
		err error
	}
	// buffered so a detector returning after the deadline never blocks
	results := make(chan result, len(active))
	for i, d := range active {
		go func() {
			out, err := m.run(ctx, d, snap)
			results <- result{i: i, out: out, err: err}
		}()
	}

	outputs := make([][]domain.Candidate, len(active))
	errs := make([]error, len(active))
	done := make([]bool, len(active))
wait:
	for pending := len(active); pending > 0; pending-- {
		select {
		case r := <-results:
			outputs[r.i], errs[r.i], done[r.i] = r.out, r.err, true
		case <-ctx.Done():
			break wait
		}
	}
	for i, d := range active {
		if !done[i] {
			errs[i] = apperror.New(apperror.CodeDetectorFailure,
				apperror.WithCause(ctx.Err()),
				apperror.WithContext("detector "+d.Name()+" missed its deadline"))
		}
	}

	report := DetectionReport{Failures: make(map[string]error)}
	seen := make(map[string]struct{})
	for i, d := range active {
		if errs[i] != nil {
			report.Failures[d.Name()] = errs[i]
			m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("detector", d.Name())))
			m.log.Warn(ctx, "detector failed", "detector", d.Name(), "error", errs[i])
			continue
		}
		m.candidates.Add(ctx, int64(len(outputs[i])), metric.WithAttributes(attribute.String("detector", d.Name())))
		for _, c := range outputs[i] {
			fp := c.Fingerprint()
			if _, dup := seen[fp]; dup {
				report.Duplicates++
				continue
			}
			seen[fp] = struct{}{}
			report.Candidates = append(report.Candidates, c)
		}
	}

	span.SetAttributes(
		attribute.Int("candidates", len(report.Candidates)),
		attribute.Int("duplicates", report.Duplicates),
		attribute.Int("failures", len(report.Failures)),
	)
	return report
}

func (m *DetectorManager) run(ctx context.Context, d Detector, snap *market.Snapshot) (out []domain.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = apperror.New(apperror.CodeDetectorFailure,
				apperror.WithContext(fmt.Sprintf("detector %s panicked: %v", d.Name(), r)))
			m.log.Debug(ctx, "detector panic", "detector", d.Name(), "stack", string(debug.Stack()))
		}
	}()

	out, err = d.Detect(ctx, snap)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, apperror.New(apperror.CodeDetectorFailure,
			apperror.WithCause(err),
			apperror.WithContext("detector "+d.Name()))
	}
	return out, nil
}
