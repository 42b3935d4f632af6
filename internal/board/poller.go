package board

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/byjit/jules-board/internal/jules"
)

// Poller periodically refreshes in-flight sessions across all projects.
// Refresh stays idempotent: only stories locally in doing are polled, so an
// already-done story is excluded from every cycle.
type Poller struct {
	controller *Controller
	store      Store
	interval   time.Duration
	logger     *slog.Logger
}

func NewPoller(controller *Controller, store Store, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{controller: controller, store: store, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, refreshing every interval. A zero
// interval disables the loop (refresh is then manual only).
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.refreshAll(ctx)
		}
	}
}

func (p *Poller) refreshAll(ctx context.Context) {
	projects, err := p.store.ListProjects(ctx)
	if err != nil {
		p.logger.Warn("refresh loop: listing projects failed", "error", err)
		return
	}

	for _, project := range projects {
		report, err := p.controller.Refresh(ctx, project.ID)
		if errors.Is(err, jules.ErrNotConfigured) {
			// Nothing to poll until a key is configured.
			return
		}
		if err != nil {
			p.logger.Warn("refresh loop: project refresh failed", "project", project.ID, "error", err)
			continue
		}
		if report.Polled > 0 {
			p.logger.Info("sessions refreshed",
				"project", project.ID,
				"polled", report.Polled,
				"completed", len(report.Completed),
				"failed", len(report.Failed),
			)
		}
	}
}
