package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reconcile",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartJob),
)

func ProvideConfig() Config {
	return DefaultConfig()
}

// StartJob runs the reconciliation loop for the lifetime of the process.
func StartJob(lc fx.Lifecycle, job *Job) {
	if !job.cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go job.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}

// RunForever reconciles on a fixed interval until the context is canceled.
func (j *Job) RunForever(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := j.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			j.log.Warn("scheduled reconciliation failed", zap.Error(err))
		}
	}
}
