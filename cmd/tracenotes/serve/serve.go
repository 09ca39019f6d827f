// Package servecmder provides the serve command, which runs the HTTP API and
// the MCP endpoint over the repository's trace notes.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/api"
	"github.com/papercomputeco/tracenotes/api/mcp"
	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/config"
	"github.com/papercomputeco/tracenotes/pkg/logger"
)

type ServeCommander struct {
	listen       string
	kafkaBrokers string
	kafkaTopic   string
	logFile      string
	readOnly     bool
}

const serveLongDesc string = `Run the tracenotes API server.

Serves the agent traces of the repository over HTTP:
  GET  /v1/agent-traces               Query stored traces
  POST /v1/agent-traces               Record traces (disabled with --read-only)
  GET  /v1/commits/:rev/traces        Traces attached to a commit
  GET  /v1/commits/:rev/attribution   Attribution of a commit's diff
  GET  /v1/summary                    Aggregate a commit range
  ALL  /mcp                           MCP streamable HTTP endpoint

Every successful write is published to Kafka when brokers are configured.

Examples:
  tracenotes serve
  tracenotes serve --listen :9000 --log-file serve.log`

const serveShortDesc string = "Run the HTTP API and MCP endpoint"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.readOnly, "read-only", false, "Do not accept trace writes")

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command) error {
	settings, err := bootstrap.Load(cmd, config.FlagListen, config.FlagKafkaBrokers, config.FlagKafkaTopic)
	if err != nil {
		return err
	}

	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()

		debug, _ := cmd.Flags().GetBool(bootstrap.FlagDebug)
		settings.Logger = logger.Multi(
			settings.Logger,
			logger.New(logger.WithDebug(debug), logger.WithJSON(true), logger.WithWriter(f)),
		)
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Store.EnsureReady(cmd.Context()); err != nil {
		return err
	}

	svc := app.Query()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Query:  svc,
		Logger: app.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	var rec api.Recorder
	if !c.readOnly {
		rec = app.Recorder
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: settings.Config.API.Listen,
		MCPHandler: mcpServer.Handler(),
	}, svc, rec, app.Logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	app.Logger.Info("serving agent traces",
		"repo", app.Env.Root,
		"ref", app.Store.Ref(),
		"listen", settings.Config.API.Listen,
		"read_only", c.readOnly,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		app.Logger.Info("received signal, shutting down", "signal", sig.String())
		return apiServer.Shutdown()
	}
}
