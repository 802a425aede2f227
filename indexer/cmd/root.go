package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mikeydub/go-indexer/api"
	"github.com/mikeydub/go-indexer/env"
	"github.com/mikeydub/go-indexer/indexer"
	"github.com/mikeydub/go-indexer/service/logger"
	sentryutil "github.com/mikeydub/go-indexer/service/sentry"
	"github.com/sirupsen/logrus"

	"github.com/spf13/cobra"
)

var (
	port      uint64
	quietLogs bool
)

func init() {
	cobra.OnInitialize(indexer.SetDefaults)

	rootCmd.PersistentFlags().BoolVarP(&quietLogs, "quiet", "q", false, "hide debug logs")
	rootCmd.Flags().Uint64VarP(&port, "port", "p", 4000, "port to serve on")

	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().Uint64VarP(&port, "port", "p", 6000, "port to serve on")
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Run a token indexing worker",
	Long: `A worker that tails one EVM network, extracting transfers or polling
balances for its watched tokens. The worker is selected by the INDEXER_NAME
environment variable.`,
	Run: func(cmd *cobra.Command, args []string) {
		defer sentryutil.RecoverAndRaise(nil)

		if quietLogs {
			logrus.SetLevel(logrus.InfoLevel)
		}

		logger.For(nil).WithFields(logrus.Fields{"indexer": env.GetString("INDEXER_NAME"), "port": port}).Info("Starting worker")
		if err := indexer.Run(context.Background(), port); err != nil {
			logger.For(nil).WithError(err).Fatal("worker exited")
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the indexer API server",
	Run: func(cmd *cobra.Command, args []string) {
		defer sentryutil.RecoverAndRaise(nil)

		if quietLogs {
			logrus.SetLevel(logrus.InfoLevel)
		}

		api.Init()
		logger.For(nil).WithFields(logrus.Fields{"port": port}).Info("Starting API server")
		http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	},
}

func Execute() {
	rootCmd.Execute()
}
