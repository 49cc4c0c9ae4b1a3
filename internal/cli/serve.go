package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/internal/server"
	"github.com/matzehuels/tilestitch/pkg/observability"
)

// serveCommand starts the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr  string
		flags cacheFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tiling API over HTTP",
		Long: `Serve starts an HTTP server exposing partition planning, config validation
and runs over inline arrays. It stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner, err := c.newRunner(ctx, flags)
			if err != nil {
				return err
			}
			defer runner.Close()

			observability.SetHTTPHooks(logHTTPHooks{logger: c.Logger})
			defer observability.SetHTTPHooks(observability.NoopHTTPHooks{})

			err = server.New(runner, c.Logger).ListenAndServe(ctx, addr)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	flags.register(cmd)
	return cmd
}

// logHTTPHooks logs every request at debug level.
type logHTTPHooks struct {
	observability.NoopHTTPHooks
	logger *log.Logger
}

func (h logHTTPHooks) OnResponse(_ context.Context, method, path string, status int, d time.Duration) {
	h.logger.Debug("request", "method", method, "path", path, "status", status, "elapsed", d.Round(time.Microsecond))
}

func (h logHTTPHooks) OnError(_ context.Context, method, path string, err error) {
	h.logger.Warn("request error", "method", method, "path", path, "err", err)
}
