package httpx

import (
	"context"
	"log/slog"
	"time"

	"github.com/splax/deploystream/internal/poller"
	"github.com/splax/deploystream/internal/profile"
	"github.com/splax/deploystream/internal/runner"
	"github.com/splax/deploystream/internal/service/deploy"
)

type fixedResolver struct {
	profile profile.Profile
}

func (r fixedResolver) Resolve() (string, profile.Profile, error) {
	return "helm", r.profile, nil
}

func newRealService(p profile.Profile, logger *slog.Logger) *deploy.Service {
	return deploy.New(fixedResolver{profile: p}, runner.New(logger), logger, deploy.Options{
		Timings: deploy.Timings{
			PollInterval:     20 * time.Millisecond,
			MonitorTimeout:   5 * time.Second,
			JoinTimeout:      time.Second,
			LogSourceTimeout: time.Second,
		},
		StatusSource: func([]string, runner.Masker) poller.Source {
			return poller.SourceFunc(func(context.Context, string) (string, error) {
				return "", nil
			})
		},
	})
}
