package drift

import (
	"context"
	"time"

	"github.com/forgehq/sidecar/internal/observability"
)

// DefaultTickInterval is how often the background loop re-evaluates every
// promoted tool.
const DefaultTickInterval = 5 * time.Minute

// Monitor ticks over every promoted tool on an interval, persisting alerts.
// Errors are logged; the loop itself never exits except via context
// cancellation.
type Monitor struct {
	store        *Store
	logger       *observability.Logger
	metrics      *observability.Metrics
	threshold    float64
	windowSize   int
	tickInterval time.Duration
}

// NewMonitor builds a Monitor. Zero-valued threshold/windowSize/interval
// fall back to their documented defaults. metrics may be nil.
func NewMonitor(store *Store, logger *observability.Logger, metrics *observability.Metrics, threshold float64, windowSize int, tickInterval time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Monitor{store: store, logger: logger, metrics: metrics, threshold: threshold, windowSize: windowSize, tickInterval: tickInterval}
}

// Run blocks, ticking until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	tools, err := m.store.PromotedBaselines(ctx)
	if err != nil {
		m.logWarn(ctx, "drift: list promoted tools failed", "error", err)
		return
	}

	for _, tool := range tools {
		result, err := m.store.CheckDrift(ctx, tool.ToolName, tool.BaselinePassRate, m.threshold, m.windowSize)
		if err != nil {
			m.logWarn(ctx, "drift: check failed", "tool_name", tool.ToolName, "error", err)
			continue
		}
		if !result.Drifting {
			continue
		}
		if _, err := m.store.FlagIfDrifting(ctx, tool.ToolName, result); err != nil {
			m.logWarn(ctx, "drift: flag failed", "tool_name", tool.ToolName, "error", err)
			continue
		}
		if m.metrics != nil {
			m.metrics.SetDriftAlertOpen(tool.ToolName, true)
		}
	}
}

func (m *Monitor) logWarn(ctx context.Context, msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(ctx, msg, args...)
	}
}
