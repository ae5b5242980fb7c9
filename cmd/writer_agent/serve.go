package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-writer/internal/config"
	"github.com/jonathan/content-writer/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes the project, artifact and stage endpoints.

Bearer authentication is enabled when JWT_SECRET is set; mint tokens with the token command.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config and PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jwtCfg, err := config.LoadJWTConfig()
	if err != nil {
		return err
	}
	if jwtCfg == nil {
		a.logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	port := a.cfg.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	srv, err := server.New(server.Config{
		Port:            port,
		Store:           a.store,
		Orchestrator:    a.orch,
		Logger:          a.logger,
		JWT:             jwtCfg,
		DefaultLanguage: a.cfg.DefaultLanguage,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}
