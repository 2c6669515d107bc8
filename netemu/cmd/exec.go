package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/sarchlab/netemu/manager"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var execCmd = &cobra.Command{
	Use:   "exec <topology> --host <id> -- <command>...",
	Short: "Run a network and drive one host through its manager channel.",
	Long: "`exec` runs the network, sends each command to the host given " +
		"by --host, prints the replies, waits for --settle and then prints " +
		"the reports the host collected. Commands use the manager syntax, " +
		"for example \"p 1\" or \"u 1 notes.txt\".",
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		hostID, _ := cmd.Flags().GetInt("host")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		settle, _ := cmd.Flags().GetDuration("settle")

		s, _, err := buildSimulation(cmd, args[0])
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		ctrl, err := s.Manager(hostID)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() {
			done <- s.Run(ctx)
		}()

		out := cmd.OutOrStdout()

		err = execCommands(ctx, ctrl, args[1:], out, timeout)
		if err == nil {
			time.Sleep(settle)
			err = printReports(ctx, ctrl, out, timeout)
		}

		cancel()

		if runErr := <-done; runErr != nil {
			log.Printf("Error: %v", runErr)
		}

		if termErr := s.Terminate(); termErr != nil {
			log.Printf("Error during shutdown: %v", termErr)
		}

		if err != nil {
			log.Printf("Error: %v", err)
			atexit.Exit(1)
		}

		atexit.Exit(0)
	},
}

func init() {
	rootCmd.AddCommand(execCmd)

	addOutputFlags(execCmd)
	execCmd.Flags().Int("host", 0, "Id of the host to drive")
	execCmd.Flags().Duration("timeout", 10*time.Second,
		"How long to wait for each reply")
	execCmd.Flags().Duration("settle", time.Second,
		"How long to let the network run after the last command")
}

type commander interface {
	Do(ctx context.Context, cmd manager.Command) (string, error)
}

// execCommands sends each line to the host and prints the replies.
func execCommands(
	ctx context.Context,
	c commander,
	lines []string,
	out io.Writer,
	timeout time.Duration,
) error {
	for _, line := range lines {
		mc, err := manager.ParseCommand(line)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "> %s\n", mc)

		cctx, cancel := context.WithTimeout(ctx, timeout)
		reply, err := c.Do(cctx, mc)
		cancel()

		if err != nil {
			return err
		}

		if mc.Op.HasReply() {
			fmt.Fprintln(out, reply)
		}
	}

	return nil
}

// printReports asks the host for its state and prints what it reported.
func printReports(
	ctx context.Context,
	c commander,
	out io.Writer,
	timeout time.Duration,
) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := c.Do(cctx, manager.Command{Op: manager.OpState})
	if err != nil {
		return err
	}

	st, err := manager.ParseState(reply)
	if err != nil {
		return err
	}

	for _, r := range st.Reports {
		fmt.Fprintln(out, r)
	}

	return nil
}
