// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lowpand",
	Short: "lowpand - 6LoWPAN adaptation-layer node daemon",
	Long: `lowpand runs one 6LoWPAN adaptation-layer node: it compresses and
fragments outbound IPv6 datagrams into link frames, and classifies,
reassembles and decompresses inbound frames before fanning the
datagrams out to registered consumers.

Features:
  - IPHC header compression with a 16-entry prefix context table
  - Fragmentation and timed reassembly for datagrams above the link MTU
  - UDP multicast transport standing in for the radio
  - Prometheus metrics and optional pcap taps`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/lowpand/config.yml",
		"config file path")
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
