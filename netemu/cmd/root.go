// Package cmd provides the command-line interface of netemu.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netemu",
	Short: "netemu emulates packet-switched networks of hosts and switches.",
	Long: `netemu emulates packet-switched networks. Every host and switch ` +
		`of a topology runs as its own tick loop, links are in-process or ` +
		`OS pipes, and bridged links cross machines over TCP.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env-file", nil,
		"Read settings from these .env files instead of ./.env")
	rootCmd.PersistentFlags().String("log-level", "",
		"Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("os-pipes", false,
		"Use OS pipes instead of in-memory channels")
}
