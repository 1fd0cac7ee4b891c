package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "datasteward",
	Short: "Data steward workspace: data catalog, data chat, team chat",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			_ = os.Setenv("CONFIG_FILE", configFile)
		}
	},
	RunE: runAPI,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (defaults to $CONFIG_FILE or configs/config.toml)")
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
}
