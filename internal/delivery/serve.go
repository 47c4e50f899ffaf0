package delivery

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tentens-tech/rental-deposit/internal/bootstrap"
	"github.com/tentens-tech/rental-deposit/internal/config"
	httpdelivery "github.com/tentens-tech/rental-deposit/internal/delivery/http"
	"golang.org/x/sync/errgroup"
)

func NewServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server",
		RunE:  rentalDepositProcess,
	}
}

func rentalDepositProcess(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configuration := config.NewConfig()
	if err := configuration.Validate(); err != nil {
		return err
	}
	ConfigureLogging(configuration)

	app, cleanup, err := bootstrap.NewApplication(ctx, configuration)
	if err != nil {
		return err
	}
	defer cleanup()

	server := httpdelivery.New(app)
	errGroup, errGroupCtx := errgroup.WithContext(ctx)

	errGroup.Go(func() error {
		log.Infof("Server is starting on :%s", configuration.Server.Port)
		if err := server.Start(":" + configuration.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	errGroup.Go(func() error {
		<-errGroupCtx.Done()

		ctxWithTimeout, cancel := context.WithTimeout(context.WithoutCancel(errGroupCtx), configuration.Server.Timeout.Shutdown)
		defer cancel()

		log.Infof("Server is shutting down due to %v", context.Cause(errGroupCtx))
		if err := server.Shutdown(ctxWithTimeout); err != nil {
			return err
		}
		return nil
	})

	return errGroup.Wait()
}

func ConfigureLogging(cfg *config.Config) {
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}
