package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/healthfees-org/workersql-sub002/pkg/adminapi"
	"github.com/healthfees-org/workersql-sub002/pkg/config"
	"github.com/healthfees-org/workersql-sub002/pkg/corestate"
	"github.com/healthfees-org/workersql-sub002/pkg/log"
	"github.com/healthfees-org/workersql-sub002/pkg/policystore"
)

var (
	// Version information (set via ldflags during build).
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "workersqld",
	Short:   "workersqld runs WorkerSQL's edge SQL routing service",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("workersqld version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the edge SQL routing service",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		nodeID, _ := cmd.Flags().GetString("node-id")
		raftBindAddr, _ := cmd.Flags().GetString("raft-bind-addr")
		adminAddr, _ := cmd.Flags().GetString("admin-addr")
		bootstrap, _ := cmd.Flags().GetBool("bootstrap")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		policy, err := policystore.NewManager(policystore.Config{
			NodeID:    nodeID,
			BindAddr:  raftBindAddr,
			DataDir:   cfg.DataDir,
			Bootstrap: bootstrap,
		})
		if err != nil {
			return fmt.Errorf("failed to create policy store: %w", err)
		}
		if err := policy.Start(); err != nil {
			return fmt.Errorf("failed to start policy store: %w", err)
		}
		if err := policy.WaitForLeader(10 * time.Second); err != nil {
			return fmt.Errorf("policy store never elected a leader: %w", err)
		}
		if err := corestate.EnsureInitialPolicy(policy, cfg); err != nil {
			return fmt.Errorf("failed to seed initial routing policy: %w", err)
		}

		cs, err := corestate.New(cfg, policy)
		if err != nil {
			return fmt.Errorf("failed to wire core state: %w", err)
		}
		cs.StartReaper(30 * time.Second)

		mux := adminapi.NewMux(cs)
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{Addr: adminAddr, Handler: mux}
		errCh := make(chan error, 1)
		workersqldLogger := log.WithComponent("workersqld")
		go func() {
			workersqldLogger.Info().Str("addr", adminAddr).Msg("admin API listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("admin API server error: %w", err)
		case sig := <-sigCh:
			workersqldLogger.Info().Str("signal", sig.String()).Msg("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			workersqldLogger.Warn().Err(err).Msg("admin API graceful shutdown error")
		}
		cs.Shutdown()
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (built-in defaults apply if omitted)")
	serveCmd.Flags().String("node-id", "node-1", "Policy Store Raft node id")
	serveCmd.Flags().String("raft-bind-addr", "127.0.0.1:7100", "Policy Store Raft bind address")
	serveCmd.Flags().String("admin-addr", "127.0.0.1:8090", "Admin HTTP API bind address")
	serveCmd.Flags().Bool("bootstrap", true, "Bootstrap a new single-voter Policy Store Raft cluster")
}
