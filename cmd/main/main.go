package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-broker/src/config"
	"market-broker/src/logger"
	"market-broker/src/publisher"
	"market-broker/src/server"
	"market-broker/src/storage"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "market-broker",
		Short:        "Market data pub/sub broker",
		Long:         "Accepts subject updates from a publisher and fans them out to websocket subscribers.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/default.yaml", "path to config file")

	// serve
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(configPath)
			if err != nil {
				return err
			}
			appLogger := logger.NewLogger(cfg, cfg.Name)

			broker, err := server.NewBroker(cfg, appLogger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := broker.Run(ctx); err != nil {
				return fmt.Errorf("broker error: %w", err)
			}
			appLogger.Info("Broker stopped")
			return nil
		},
	}
	rootCmd.AddCommand(serveCmd)

	// publish
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Poll the trades store and publish changes to a broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(configPath)
			if err != nil {
				return err
			}
			if url, _ := cmd.Flags().GetString("broker"); url != "" {
				cfg.Publisher.BrokerURL = url
			}
			appLogger := logger.NewLogger(cfg, cfg.Name+"-publisher")

			store, err := storage.NewStore(cfg.Publisher.Storage, appLogger.Named("Storage"))
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return publisher.NewPublisher(cfg, store, appLogger).Run(ctx)
		},
	}
	publishCmd.Flags().String("broker", "", "ingestion URL, overrides publisher.broker_url")
	rootCmd.AddCommand(publishCmd)

	// config init
	configCmd := &cobra.Command{Use: "config", Short: "Config file operations"}
	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file holding every default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
