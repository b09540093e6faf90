package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"lifedash/internal/app"
	"lifedash/internal/domain/studysync"
	"lifedash/internal/interfaces/scheduler"
	"lifedash/internal/shared/config"
	"lifedash/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Printf("Error shutting down telemetry: %v", err)
			}
		}()
		log.Println("OpenTelemetry initialized")
	}

	deps, err := app.NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	deps.Pool.Start()

	var schedulers []*scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedulers, err = startSchedulers(deps, cfg)
		if err != nil {
			deps.Pool.ShutdownWithTimeout(time.Second)
			return err
		}
	} else {
		log.Println("Scheduler is disabled")
	}

	// Inbox consumer, woken by the store notifier when there is one
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	if deps.Listener != nil {
		deps.Listener.Start(consumerCtx)
	}
	go func() {
		defer close(consumerDone)
		deps.Consumer.Run(consumerCtx, deps.InboxWake)
	}()

	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv := StartServers(NewServerConfigFromConfig(handler, cfg))

	<-ctx.Done()

	GracefulShutdown(srv, redirectSrv, schedulers, 30*time.Second)

	stopConsumer()
	<-consumerDone
	if deps.Listener != nil {
		deps.Listener.Stop()
	}
	deps.Pool.ShutdownWithTimeout(30 * time.Second)
	return nil
}

// startSchedulers starts the full sync scheduler and the push-only
// scheduler on the shared worker pool.
func startSchedulers(deps *app.Dependencies, cfg *config.Config) ([]*scheduler.Scheduler, error) {
	loc, err := cfg.Sync.Location()
	if err != nil {
		return nil, err
	}

	syncSched, err := scheduler.NewScheduler(deps.Pool, scheduler.SchedulerConfig{
		Name:          "studyplanner-sync",
		ScheduleTimes: cfg.Scheduler.ScheduleTimes,
		Location:      loc,
		RunOnStartup:  cfg.Scheduler.RunOnStartup,
		JobProvider:   deps.Dispatcher.ScheduledSyncs(studysync.Provider, deps.Credentials),
	})
	if err != nil {
		return nil, err
	}

	pushSched, err := scheduler.NewScheduler(deps.Pool, scheduler.SchedulerConfig{
		Name:        "studyplanner-push",
		Interval:    cfg.Scheduler.PushInterval,
		Location:    loc,
		JobProvider: scheduler.ScheduledPushes(studysync.Provider, deps.Credentials, deps.StudyPlanner),
	})
	if err != nil {
		return nil, err
	}

	syncSched.Start()
	log.Printf("Sync scheduler started with times: %v (%s)", cfg.Scheduler.ScheduleTimes, loc)
	pushSched.Start()
	log.Printf("Push scheduler started every %v", cfg.Scheduler.PushInterval)

	return []*scheduler.Scheduler{syncSched, pushSched}, nil
}
