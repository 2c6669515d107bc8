package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/netemu/config"
	"github.com/sarchlab/netemu/topology"
	"github.com/spf13/cobra"
)

// loadConfig reads the settings and applies the flags that override them.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}

	if cmd.Flags().Changed("os-pipes") {
		cfg.OSPipes, _ = cmd.Flags().GetBool("os-pipes")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	if err := cfg.ApplyLogLevel(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

// parseHostDirs reads --dir values of the form <host id>=<directory>.
func parseHostDirs(values []string) (map[int]string, error) {
	dirs := make(map[int]string, len(values))

	for _, v := range values {
		idText, dir, ok := strings.Cut(v, "=")
		if !ok || dir == "" {
			return nil, fmt.Errorf("bad --dir %q, want <host id>=<directory>", v)
		}

		id, err := strconv.Atoi(idText)
		if err != nil {
			return nil, fmt.Errorf("bad host id in --dir %q", v)
		}

		dirs[id] = dir
	}

	return dirs, nil
}

// summarize describes a topology in one line.
func summarize(t *topology.Topology) string {
	hosts := len(t.Hosts())
	bridged := 0

	for _, l := range t.Links {
		if l.Kind == topology.Bridged {
			bridged++
		}
	}

	return fmt.Sprintf("%d hosts, %d switches, %d links (%d bridged)",
		hosts, len(t.Nodes)-hosts, len(t.Links), bridged)
}
