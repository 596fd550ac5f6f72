package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/GamerLionLeo/CGM-Trakr/internal/xslog"
)

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:          "cgmtrakr",
		Short:        "CGM-Trakr glucose tracking service",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(logger), newMigrateCmd(logger))

	if err := root.Execute(); err != nil {
		logger.Error("fatal error", xslog.Error(err))
		os.Exit(1)
	}
}
