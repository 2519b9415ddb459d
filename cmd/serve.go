package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatppt_studio/history"
	"chatppt_studio/preview"
	"chatppt_studio/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		opts := server.Options{
			Engine:   a.engine,
			Renderer: preview.NewRenderer(a.logger, a.cfg.Images.OutputDir),
			Logger:   a.logger.With("component", "http"),
		}
		if cat, ok := a.store.(history.Catalog); ok {
			opts.Catalog = cat
		}
		if p, err := a.pipeline(); err != nil {
			a.logger.Warn("image pipeline disabled", "error", err)
		} else {
			opts.Illustrator = p
		}
		srv, err := server.New(opts)
		if err != nil {
			return err
		}

		listen := a.cfg.Server.Addr
		if serveAddr != "" {
			listen = serveAddr
		}
		httpSrv := &http.Server{
			Addr:              listen,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("API server starting", "addr", listen)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
