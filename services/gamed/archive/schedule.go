package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ScheduleExports writes a Parquet snapshot of the archive into dir every
// interval, starting immediately. The returned function stops the scheduler
// and waits for a running export to finish.
func (a *Archive) ScheduleExports(dir string, every time.Duration) (func() error, error) {
	if every <= 0 {
		return nil, fmt.Errorf("archive: export interval must be positive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: export dir: %w", err)
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("archive: scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			name := fmt.Sprintf("events-%d.parquet", a.nowFn().UTC().Unix())
			path := filepath.Join(dir, name)
			n, err := a.ExportParquet(context.Background(), path)
			if err != nil {
				a.logger.Error("scheduled export failed", "path", path, "error", err)
				return
			}
			a.logger.Info("scheduled export written", "path", path, "events", n)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("archive: export job: %w", err)
	}
	sched.Start()
	return sched.Shutdown, nil
}
