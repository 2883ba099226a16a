package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppolstra/windows-forensics/internal/env"
	"github.com/ppolstra/windows-forensics/internal/logger"
)

const AppName = "winfor"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:     AppName,
		Short:   AppName + " - disk image partition, FAT and NTFS analysis tool",
		Version: env.Version,
	}

	rootCmd.PersistentFlags().String("log-level", "INFO", "minimum log level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(
		DefinePartitionsCommand(),
		DefineMountCommand(),
		DefineFatlsCommand(),
		DefineUndeleteCommand(),
		DefineMftCommand(),
		DefineExtractCommand(),
		DefineCarveCommand(),
		DefineTimelineCommand(),
	)

	return rootCmd.Execute()
}

func getLogger(cmd *cobra.Command) *logger.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logger.New(os.Stdout, logger.ParseLevel(level))
}
