package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/internal/version"
	"github.com/hrygo/mnemo/server"
	apiv1 "github.com/hrygo/mnemo/server/router/api/v1"
)

var (
	rootCmd = &cobra.Command{
		Use:   "mnemo",
		Short: `A hybrid memory engine for AI agents: durable notes, long-term memory and semantic recall.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// systemd units provide their environment explicitly
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		SilenceUsage: true,
		RunE:         runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API with the embedding worker and auto-ingest",
		RunE:  runServe,
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", profile.DriverSQLite)
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", profile.DriverSQLite, "storage driver (file, sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "log-level"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("mnemo")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, workerCmd, embedCmd, memoryCmd, statsCmd, versionCmd)
}

// loadProfile builds the instance profile from flags, MNEMO_* variables and defaults.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:     viper.GetString("mode"),
		Addr:     viper.GetString("addr"),
		Port:     viper.GetInt("port"),
		Data:     viper.GetString("data"),
		Driver:   viper.GetString("driver"),
		DSN:      viper.GetString("dsn"),
		LogLevel: viper.GetString("log-level"),
		Version:  version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := newEngine(ctx, instanceProfile)
	if err != nil {
		return err
	}
	defer e.close()

	api := apiv1.NewAPIV1Service(e.service, e.searcher, e.ingestor, e.tools, e.logger)
	s := server.NewServer(instanceProfile, e.store, api, e.metrics, e.logger)

	w, err := e.newWorker()
	switch {
	case instanceProfile.WorkerDisabled:
		e.logger.Info("Embedding worker disabled by configuration")
		w = nil
	case err != nil:
		e.logger.Warn("Embedding worker not started", "error", err)
	default:
		w.Start(ctx)
	}

	c := make(chan os.Signal, 1)
	// SIGTERM is the graceful shutdown signal of most process managers.
	signal.Notify(c, terminationSignals...)

	if err := s.Start(ctx); err != nil {
		return err
	}
	printGreetings(instanceProfile)

	<-c
	s.Shutdown(ctx)
	if w != nil {
		if err := w.Stop(10 * time.Second); err != nil {
			e.logger.Warn("Embedding worker did not stop in time", "error", err)
		}
	}
	return nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("mnemo %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Storage driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)
	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError explains common database connection failures.
func printDatabaseError(err error, p *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL is not reachable.")
		fmt.Fprintln(os.Stderr, "  Start it, or use the embedded backend: MNEMO_DRIVER=sqlite")
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL SSL configuration mismatch. Add ?sslmode=disable to the DSN.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL authentication failed. Check the credentials in MNEMO_DSN.")
	case strings.Contains(errMsg, "vector"):
		fmt.Fprintln(os.Stderr, "  The pgvector extension is missing: CREATE EXTENSION vector;")
	default:
		fmt.Fprintln(os.Stderr, "  Error:", errMsg)
	}
	if p.Driver != profile.DriverFile {
		fmt.Fprintf(os.Stderr, "  Driver: %s\n", p.Driver)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
