package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"archivist/internal/logging"
	"archivist/internal/preflight"
)

// runPreflightChecks reports external tool availability. Missing optional
// tools are warnings; a missing required tool stops Start.
func (m *Manager) runPreflightChecks(logger *slog.Logger) error {
	if m.preflight == nil {
		return nil
	}
	var failures []string
	for _, st := range m.preflight(m.cfg) {
		switch {
		case st.Available:
			logger.Debug("preflight check passed",
				logging.String("check", st.Name),
				logging.String("command", st.Command),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
		case st.Optional:
			logging.WarnWithContext(logger, "optional tool unavailable", "preflight_optional_missing",
				logging.String("check", st.Name),
				logging.String("detail", st.Detail),
				logging.String(logging.FieldErrorHint, "install it or set its path under [tools]"),
				logging.String(logging.FieldImpact, "recordings that need it will fail at that stage"),
			)
		default:
			logger.Error("preflight check failed",
				logging.String("check", st.Name),
				logging.String("detail", st.Detail),
				logging.String(logging.FieldEventType, "preflight_failed"),
				logging.String(logging.FieldErrorHint, "install the tool or set its path under [tools] and restart"),
			)
			failures = append(failures, fmt.Sprintf("%s: %s", st.Name, st.Detail))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

// checkReadiness runs the filesystem checks before a claim. Failures are
// logged once per outage and recorded as the last error; the queue is left
// untouched until the checks pass again.
func (m *Manager) checkReadiness(ctx context.Context) bool {
	if m.readiness == nil {
		return true
	}
	failed := preflight.Failed(m.readiness(ctx, m.cfg))
	if len(failed) == 0 {
		if m.notReady {
			m.notReady = false
			m.logger.Info("readiness checks pass again, resuming",
				logging.String(logging.FieldEventType, "readiness_restored"),
			)
		}
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	details := make([]string, 0, len(failed))
	for _, r := range failed {
		details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	summary := strings.Join(details, "; ")
	m.setLastError(errors.New(summary))
	if !m.notReady {
		m.notReady = true
		logging.WarnWithContext(m.logger, "readiness checks failed, pausing the queue", "readiness_failed",
			logging.String("detail", summary),
			logging.String(logging.FieldErrorHint, "free disk space or fix directory permissions"),
			logging.String(logging.FieldImpact, "pending recordings wait until the checks pass"),
		)
	}
	return false
}
