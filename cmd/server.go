package cmd

import (
	"context"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"

	"renthouse-scheduler/internal/delivery/http"
	"renthouse-scheduler/internal/repository"
	"renthouse-scheduler/internal/service"
	"renthouse-scheduler/pkg/utils"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scheduler and its API",
	Run:   Start,
}

func Start(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	repo, err := repository.NewRepository(appDep.cfg, appDep.db.DB, appDep.log)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	services := service.NewService(
		appDep.cfg,
		appDep.log,
		appDep.validator,
		repo,
		appDep.cache,
	)

	// Rebuild the registry from the store before the timers start firing.
	if err := services.SchedulerService.RecoverOnStartup(ctx); err != nil {
		log.Fatalf("Failed to recover schedules: %v", err)
	}
	services.JobRegistry.Start()

	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.validator, services)
	apiServer := NewHTTPServer(ctx, appDep, httpHandler)
	utils.GoSafe(func() {
		if err := apiServer.Start(); err != nil && err != httpNet.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	})

	<-ctx.Done()
	log.Println("Shutting down gracefully...")

	// Stop scheduling first, then wait for in-flight ticks to drain.
	<-services.JobRegistry.Stop().Done()

	if err := apiServer.Stop(); err != nil {
		log.Fatalf("Failed to stop HTTP server: %v", err)
	}

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}
