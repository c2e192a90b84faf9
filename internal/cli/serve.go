package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aide/internal/logging"
	"aide/internal/server"
)

var serveSyncInterval time.Duration

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().DurationVar(&serveSyncInterval, "sync-interval", 5*time.Second, "vault decision poll interval")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Run the HTTP API, the vault decision poller, and resume any tasks that were running at shutdown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		handler, err := server.New(server.Config{
			Classifier:  app.classifier,
			Router:      app.router,
			Gateway:     app.gateway,
			Engine:      app.engine,
			DefaultUser: app.cfg.Global.DefaultUser,
			JWTSecret:   app.cfg.Server.JWTSecret,
		})
		if err != nil {
			return err
		}

		go app.gateway.SyncLoop(ctx, serveSyncInterval)
		resumeRunningTasks(ctx, app)

		addr := fmt.Sprintf("%s:%d", app.cfg.Server.Host, app.cfg.Server.Port)
		httpServer := &http.Server{Addr: addr, Handler: handler}

		errCh := make(chan error, 1)
		go func() {
			logging.Info().Str("addr", addr).Msg("http server listening")
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

// resumeRunningTasks restarts loops left in the running state by a
// previous process.
func resumeRunningTasks(ctx context.Context, app *app) {
	tasks, err := app.tasks.ListActive(ctx, app.cfg.Global.DefaultUser)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to list active tasks")
		return
	}
	for _, task := range tasks {
		go func(id string) {
			if _, err := app.engine.Resume(ctx, id); err != nil {
				logging.Warn().Err(err).Str("task_id", id).Msg("task resume failed")
			}
		}(task.ID)
	}
}
