package chathub

import (
	"context"
	"time"

	"voicechat/backend/internal/models"

	"github.com/rs/zerolog/log"
)

const reportTimeout = 2 * time.Second

// StatsReporter mirrors hub snapshots somewhere outside the process, e.g. Redis.
type StatsReporter interface {
	ReportStats(ctx context.Context, stats models.HubStats) error
}

// publishStats hands the latest snapshot to the reporter goroutine. An older
// snapshot still waiting in the channel is replaced.
func (m *ManagerService) publishStats() {
	if m.Reporter == nil {
		return
	}
	s := m.snapshot()
	select {
	case <-m.reportCh:
	default:
	}
	select {
	case m.reportCh <- s:
	default:
	}
}

func (m *ManagerService) runReporter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.reportCh:
			rctx, cancel := context.WithTimeout(ctx, reportTimeout)
			if err := m.Reporter.ReportStats(rctx, s); err != nil {
				log.Warn().Err(err).Str("module", "presence").Msg("stats report failed")
			}
			cancel()
		}
	}
}
