package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.chrisrx.dev/x/log"

	"go.chrisrx.dev/modelserver/config"
	"go.chrisrx.dev/modelserver/devserver"
)

var opts struct {
	Port   int
	Models []string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "In-memory model server for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(log.WithFormat(log.JSONFormat))

			serverOpts := []devserver.Option{devserver.WithLogger(logger)}
			for _, path := range opts.Models {
				content, err := readModel(path)
				if err != nil {
					return err
				}
				serverOpts = append(serverOpts, devserver.WithModel(filepath.Base(path), content))
			}
			s := devserver.New(serverOpts...)

			e := s.Echo()
			e.Pre(middleware.RemoveTrailingSlash())
			e.Use(middleware.Logger())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				s.Close()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = e.Shutdown(shutdownCtx)
			}()

			// run
			logger.Info("serving models", slog.Int("port", opts.Port))
			if err := e.Start(fmt.Sprintf(":%d", opts.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", cfg.Port, "")
	cmd.Flags().StringSliceVarP(&opts.Models, "model", "m", nil, "JSON model files to preload, named after the file")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func readModel(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
