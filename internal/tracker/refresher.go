package tracker

import (
	"context"
	"time"

	"github.com/tao-tracker/tao-tracker/internal/cache"
	"github.com/tao-tracker/tao-tracker/internal/logging"
)

// Run 在后台定时强制刷新 subnets 槽位：启动时先预热一次，之后每个 interval 刷新一次。
// interval <= 0 时直接返回。ctx 取消后退出。
func (s *Service) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Service) refresh(ctx context.Context) {
	started := time.Now()
	subnets, res, err := s.Subnets(ctx, true)
	entry := s.logger.WithFields(logging.SlotFields("background_refresh", SlotSubnets))
	if err != nil {
		if ctx.Err() == nil {
			entry.WithError(err).Error("background refresh failed")
		}
		return
	}
	if res.Status == cache.StatusStale {
		entry.WithError(res.FetchErr).Warn("background refresh failed, keeping previous subnets")
		return
	}
	entry.WithField("subnets", len(subnets)).
		WithField("took_ms", time.Since(started).Milliseconds()).
		Info("background refresh complete")
}
