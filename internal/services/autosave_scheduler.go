package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// AutosaveScheduler periodically persists dirty project sessions
type AutosaveScheduler struct {
	scheduler gocron.Scheduler
	projects  *ProjectService
	interval  time.Duration
}

// NewAutosaveScheduler creates the scheduler; Start registers the job
func NewAutosaveScheduler(projects *ProjectService, interval time.Duration) (*AutosaveScheduler, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &AutosaveScheduler{
		scheduler: scheduler,
		projects:  projects,
		interval:  interval,
	}, nil
}

// Start registers the autosave job and starts the scheduler
func (a *AutosaveScheduler) Start() error {
	log.Printf("⏰ Starting autosave scheduler (every %s)...", a.interval)
	_, err := a.scheduler.NewJob(
		gocron.DurationJob(a.interval),
		gocron.NewTask(a.flush),
		gocron.WithName("autosave-projects"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register autosave job: %w", err)
	}
	a.scheduler.Start()
	log.Println("✅ Autosave scheduler started")
	return nil
}

func (a *AutosaveScheduler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), a.interval)
	defer cancel()
	saved, err := a.projects.FlushDirty(ctx)
	if err != nil {
		log.Printf("⚠️ [AUTOSAVE] %v", err)
	}
	if saved > 0 {
		log.Printf("💾 [AUTOSAVE] Persisted %d projects", saved)
	}
}

// Stop flushes once more and stops the scheduler
func (a *AutosaveScheduler) Stop() error {
	log.Println("⏹️ Stopping autosave scheduler...")
	a.flush()
	return a.scheduler.Shutdown()
}
