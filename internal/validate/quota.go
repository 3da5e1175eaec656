package validate

import (
	"fmt"
	"log/slog"
)

// Quota watermarks as a fraction of the configured ceiling. Crossing the
// soft mark logs a warning; crossing the hard mark fails the write.
const (
	quotaSoftPct = 75
	quotaHardPct = 90
)

// QuotaError means the local cache is close to its storage ceiling. It is
// never retried automatically; the user has to free space first.
type QuotaError struct {
	UsedBytes      int64
	ProjectedBytes int64
	LimitBytes     int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("local storage quota exceeded: %d of %d bytes used (write would bring usage to %d)",
		e.UsedBytes, e.LimitBytes, e.ProjectedBytes)
}

// Guard estimates cache usage before a write and fails fast when the
// projected usage crosses the hard watermark.
type Guard struct {
	limit  int64
	used   func() (int64, error)
	logger *slog.Logger
}

// NewGuard creates a Guard over the given usage estimator. A limit <= 0
// disables quota checking entirely.
func NewGuard(limitBytes int64, used func() (int64, error)) *Guard {
	return &Guard{limit: limitBytes, used: used, logger: slog.Default()}
}

// Check returns a *QuotaError when writing incoming more bytes would push
// usage past the hard watermark. Estimator failures are logged and treated as
// unknown usage; they never block the write.
func (g *Guard) Check(incomingBytes int) error {
	if g == nil || g.limit <= 0 {
		return nil
	}

	used, err := g.used()
	if err != nil {
		g.logger.Warn("quota check skipped: could not estimate cache size", "error", err)
		return nil
	}

	projected := used + int64(incomingBytes)
	hard := g.limit * quotaHardPct / 100
	soft := g.limit * quotaSoftPct / 100

	if projected >= hard {
		return &QuotaError{UsedBytes: used, ProjectedBytes: projected, LimitBytes: g.limit}
	}
	if projected >= soft {
		g.logger.Warn("local storage quota nearing limit",
			"used_bytes", used, "projected_bytes", projected, "limit_bytes", g.limit)
	}
	return nil
}
