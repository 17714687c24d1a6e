package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/youssefsiam38/legalpg"
	"github.com/youssefsiam38/legalpg/config"
)

var (
	configPath string
	logDebug   bool
	logJSON    bool

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:     "legalpg",
	Short:   "Legal text indexing and question answering",
	Long:    "Loads legal texts into PostgreSQL, embeds them and answers questions about them.",
	Version: legalpg.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr)
		if logDebug {
			log.SetLevel(logrus.DebugLevel)
		}
		if logJSON {
			log.SetFormatter(&logrus.JSONFormatter{})
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envGetString("LEGALPG_CONFIG", "legalpg.yaml"), "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&logDebug, "debug", envGetBool("DEBUG", false), "set logging level to debug")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON format")
}

// withClient loads the configuration, opens a client for the duration of fn
// and cancels fn's context on SIGINT or SIGTERM.
func withClient(fn func(ctx context.Context, client *legalpg.Client) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := legalpg.NewClient(ctx, cfg, newLogger(log))
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(ctx, client)
}

func envGetBool(key string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return parsed
	}
	return defaultValue
}

func envGetString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
