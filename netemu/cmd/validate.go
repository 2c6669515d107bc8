package cmd

import (
	"fmt"
	"log"

	"github.com/sarchlab/netemu/topology"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <topology>",
	Short: "Check a topology file without running it.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t, err := topology.LoadFile(args[0])
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], summarize(t))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
