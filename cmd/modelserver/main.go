package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.chrisrx.dev/x/log"

	"go.chrisrx.dev/modelserver/client"
	"go.chrisrx.dev/modelserver/config"
	"go.chrisrx.dev/modelserver/launch"
	"go.chrisrx.dev/modelserver/message"
)

var opts struct {
	Host     string
	Port     int
	BasePath string
	Format   string
	Timeout  time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := log.New(log.WithFormat(log.JSONFormat))

	newClient := func(cmd *cobra.Command) (*client.Client, error) {
		if cmd.Flags().Changed("host") {
			cfg.Hostname = opts.Host
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = opts.Port
		}
		if cmd.Flags().Changed("base-path") {
			cfg.BasePath = opts.BasePath
		}
		if cmd.Flags().Changed("format") {
			cfg.Format = opts.Format
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return client.New(cfg.URL(),
			client.WithLogger(logger),
			client.WithDefaultFormat(cfg.Format),
		)
	}

	// withClient runs fn with a client and a request timeout, printing the
	// result as JSON.
	withClient := func(fn func(ctx context.Context, c *client.Client, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			v, err := fn(ctx, c, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		}
	}

	cmd := &cobra.Command{
		Use:          "modelserver",
		Short:        "Client for a model server",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.Host, "host", "H", cfg.Hostname, "model server hostname")
	cmd.PersistentFlags().IntVarP(&opts.Port, "port", "p", cfg.Port, "model server port")
	cmd.PersistentFlags().StringVar(&opts.BasePath, "base-path", cfg.BasePath, "api base path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "default model format")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ping",
			Short: "Check that the server is reachable",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				return c.Ping(ctx)
			}),
		},
		&cobra.Command{
			Use:   "uris",
			Short: "List model URIs",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				return c.GetModelURIs(ctx)
			}),
		},
		&cobra.Command{
			Use:   "get MODELURI",
			Short: "Print a model",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.Get(ctx, args[0], opts.Format)
			}),
		},
		&cobra.Command{
			Use:   "element MODELURI ID",
			Short: "Print a model element by id",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.GetElementByID(ctx, args[0], args[1], opts.Format)
			}),
		},
		&cobra.Command{
			Use:   "all",
			Short: "Print every model",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				return c.GetAll(ctx, opts.Format)
			}),
		},
		&cobra.Command{
			Use:   "create MODELURI FILE",
			Short: "Create a model from a JSON file, - for stdin",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				model, err := readJSON(args[1])
				if err != nil {
					return nil, err
				}
				return c.Create(ctx, args[0], model, opts.Format)
			}),
		},
		&cobra.Command{
			Use:   "update MODELURI FILE",
			Short: "Replace a model from a JSON file, - for stdin",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				model, err := readJSON(args[1])
				if err != nil {
					return nil, err
				}
				return c.Update(ctx, args[0], model, opts.Format)
			}),
		},
		&cobra.Command{
			Use:   "delete MODELURI",
			Short: "Delete a model",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.Delete(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "close MODELURI",
			Short: "Close a model without saving",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.CloseModel(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "save [MODELURI]",
			Short: "Save a model, or every model when none is given",
			Args:  cobra.MaximumNArgs(1),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				if len(args) == 0 {
					return c.SaveAll(ctx)
				}
				return c.Save(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "validate MODELURI",
			Short: "Validate a model",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.Validate(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "typeschema MODELURI",
			Short: "Print the JSON schema of a model",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.GetTypeSchema(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "edit MODELURI FILE",
			Short: "Execute a command read from a JSON file, - for stdin",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				var command message.Command
				if err := decodeFile(args[1], &command); err != nil {
					return nil, err
				}
				return c.Edit(ctx, args[0], &command, opts.Format)
			}),
		},
		&cobra.Command{
			Use:   "undo MODELURI",
			Short: "Undo the last command",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.Undo(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "redo MODELURI",
			Short: "Redo the last undone command",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.Redo(ctx, args[0])
			}),
		},
		configureCmd(withClient),
		subscribeCmd(logger, newClient),
		launchCmd(&cfg, logger, newClient),
	)

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

type runFunc = func(ctx context.Context, c *client.Client, args []string) (any, error)

func configureCmd(withClient func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	var uiSchemaFolder string
	cmd := &cobra.Command{
		Use:   "configure WORKSPACE",
		Short: "Set the workspace root of the server",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.Client, args []string) (any, error) {
			return c.ConfigureServer(ctx, client.ServerConfiguration{
				WorkspaceRoot:  args[0],
				UISchemaFolder: uiSchemaFolder,
			})
		}),
	}
	cmd.Flags().StringVar(&uiSchemaFolder, "ui-schema-folder", "", "folder holding ui schemas")
	return cmd
}

func subscribeCmd(logger *slog.Logger, newClient func(*cobra.Command) (*client.Client, error)) *cobra.Command {
	var so client.SubscriptionOptions
	cmd := &cobra.Command{
		Use:   "subscribe MODELURI",
		Short: "Print live updates of a model until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			so.ErrorWhenUnsuccessful = true
			sub, err := c.Subscribe(ctx, args[0], client.ListenerFuncs{
				Message: func(_ string, event client.MessageEvent) {
					_, _ = fmt.Fprintln(out, string(event.Data))
				},
				Error: func(modelURI string, err error) {
					logger.Error("subscription error", slog.String("modeluri", modelURI), slog.Any("error", err))
				},
			}, so)
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				c.Unsubscribe(args[0])
				<-sub.Done()
			case <-sub.Done():
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&so.Timeout, "idle-timeout", 0, "server side idle timeout, keep-alives are sent when set")
	cmd.Flags().BoolVar(&so.LiveValidation, "live-validation", false, "receive validation results with every change")
	return cmd
}

func launchCmd(cfg *config.Config, logger *slog.Logger, newClient func(*cobra.Command) (*client.Client, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the model server from its jar unless it is already running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l := launch.New(c, *cfg, launch.WithLogger(logger))
			started, err := l.Launch(ctx)
			if err != nil {
				return err
			}
			if !started {
				return nil
			}
			<-ctx.Done()
			return l.Stop()
		},
	}
	cmd.Flags().StringVar(&cfg.Jar, "jar", cfg.Jar, "model server jar")
	cmd.Flags().StringSliceVar(&cfg.Args, "arg", cfg.Args, "additional server arguments")
	cmd.Flags().DurationVar(&cfg.StartTimeout, "start-timeout", cfg.StartTimeout, "time to wait for the server to answer pings")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSON(path string) (any, error) {
	var v any
	if err := decodeFile(path, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeFile(path string, v any) error {
	r := io.Reader(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return nil
}
