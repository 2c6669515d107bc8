package cmd

import (
	"github.com/sarchlab/netemu/config"
	"github.com/sarchlab/netemu/simulation"
	"github.com/sarchlab/netemu/topology"
	"github.com/spf13/cobra"
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("monitor", false, "Serve the monitor")
	cmd.Flags().Int("monitor-port", 0,
		"Port of the monitor, implies --monitor; 0 picks a free port")
	cmd.Flags().Bool("open-browser", false, "Open the monitor in a browser")
	cmd.Flags().Bool("record", false,
		"Record packets and jobs into a SQLite database")
	cmd.Flags().String("record-name", "",
		"Name of the database, without the .sqlite3 extension")
	cmd.Flags().String("capture", "", "Write sent frames to this PCAP file")
	cmd.Flags().StringArray("dir", nil,
		"Initial directory of a host, as <host id>=<directory>")
}

// buildSimulation loads the configuration and the topology named by path and
// builds a simulation with the outputs selected by the flags.
func buildSimulation(
	cmd *cobra.Command,
	path string,
) (*simulation.Simulation, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}

	t, err := topology.LoadFile(path)
	if err != nil {
		return nil, cfg, err
	}

	b := simulation.MakeBuilder().
		WithConfig(cfg).
		WithTopology(t)

	flags := cmd.Flags()

	monitorOn, _ := flags.GetBool("monitor")
	monitorPort, _ := flags.GetInt("monitor-port")
	if monitorOn || flags.Changed("monitor-port") {
		b = b.WithMonitor(monitorPort)

		if open, _ := flags.GetBool("open-browser"); open {
			b = b.WithBrowser()
		}
	}

	if record, _ := flags.GetBool("record"); record {
		name, _ := flags.GetString("record-name")
		b = b.WithRecording(name)
	}

	if capturePath, _ := flags.GetString("capture"); capturePath != "" {
		b = b.WithCapture(capturePath)
	}

	dirValues, _ := flags.GetStringArray("dir")

	dirs, err := parseHostDirs(dirValues)
	if err != nil {
		return nil, cfg, err
	}

	for id, dir := range dirs {
		b = b.WithHostDir(id, dir)
	}

	s, err := b.Build()

	return s, cfg, err
}
