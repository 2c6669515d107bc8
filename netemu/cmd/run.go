package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var runCmd = &cobra.Command{
	Use:   "run <topology>",
	Short: "Run a network until interrupted.",
	Long: "`run <topology>` builds the network described by a .topo or " +
		".yaml file and runs every node and bridge until the process is " +
		"interrupted or --duration elapses.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, _, err := buildSimulation(cmd, args[0])
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		runErr := s.Run(ctx)

		if err := s.Terminate(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}

		if runErr != nil {
			log.Printf("Error: %v", runErr)
			atexit.Exit(1)
		}

		atexit.Exit(0)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	addOutputFlags(runCmd)
	runCmd.Flags().Duration("duration", 0*time.Second,
		"Stop after this long; 0 runs until interrupted")
}
