package cmd

import (
	"context"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/lowpan/internal/config"
	"firestige.xyz/lowpan/internal/core"
	"firestige.xyz/lowpan/internal/log"
	"firestige.xyz/lowpan/internal/lowpan"
	"firestige.xyz/lowpan/internal/lowpan/iphc"
	"firestige.xyz/lowpan/internal/lowpan/reassembly"
	"firestige.xyz/lowpan/internal/lowpan/tap"
	"firestige.xyz/lowpan/internal/metrics"
	"firestige.xyz/lowpan/internal/sink/console"
	"firestige.xyz/lowpan/internal/transceiver"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node",
	Long: `
Start a 6LoWPAN node. The node joins the configured UDP multicast
group, registers the console sink and runs until SIGINT or SIGTERM.

Examples:
  lowpand start -c config.yml               # Start with config.yml
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("load config", err)
		}
		if err := log.Init(cfg.Log); err != nil {
			exitWithError("init logging", err)
		}
		if err := run(cfg); err != nil {
			exitWithError("run", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func run(cfg *config.GlobalConfig) error {
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := metricsSrv.Start(); err != nil {
			return err
		}
	}

	contexts, err := loadContexts(cfg)
	if err != nil {
		return err
	}

	frameTap, err := tap.Open(tap.Config{
		FramesPath:    cfg.Tap.FramesPath,
		DatagramsPath: cfg.Tap.DatagramsPath,
	})
	if err != nil {
		return err
	}

	udp, err := transceiver.NewUDP(transceiver.UDPConfig{
		Group:     cfg.Transport.Group,
		Port:      cfg.Transport.Port,
		Interface: cfg.Transport.Interface,
		Local:     cfg.Node.Addr,
	})
	if err != nil {
		return err
	}

	stack := lowpan.New(lowpan.Config{
		LocalAddr:        cfg.Node.Addr,
		Role:             cfg.Node.NodeRole,
		MTU:              cfg.Link.MTU,
		Compression:      cfg.Link.Compression,
		PoolSlots:        cfg.Pool.Slots,
		RegistryCapacity: cfg.Registry.Capacity,
		Reassembly: reassembly.Config{
			Capacity: cfg.Reassembly.Capacity,
			Timeout:  cfg.Reassembly.TimeoutD,
		},
		SweepInterval: cfg.Reassembly.SweepIntervalD,
		Contexts:      contexts,
		Tap:           frameTap,
	}, udp)
	if err := stack.Start(); err != nil {
		return err
	}

	sink := console.NewSink(0)
	if err := stack.Register(console.Name, sink.Inbox()); err != nil {
		return err
	}
	go sink.Run()

	ctx, cancel := context.WithCancel(context.Background())
	rxDone := make(chan error, 1)
	go func() {
		rxDone <- udp.Run(ctx, stack.Receive)
	}()

	slog.Info("node started",
		"link_addr", cfg.Node.Addr.String(),
		"role", cfg.Node.Role,
		"mtu", cfg.Link.MTU,
		"group", cfg.Transport.Group)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		slog.Info("shutting down", "signal", s.String())
	case err := <-rxDone:
		if err != nil {
			slog.Error("receive loop failed", "err", err)
		}
	}

	cancel()
	udp.Close()
	stack.Unregister(console.Name)
	sink.Close()
	stack.Stop()
	if frameTap != nil {
		frameTap.Close()
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Stop(shutdownCtx)
	}
	return nil
}

// loadContexts builds the compression context table from the optional
// context file, then installs the advertised prefix as context 1 when
// running as a border router.
func loadContexts(cfg *config.GlobalConfig) (*iphc.ContextTable, error) {
	contexts := iphc.NewContextTable()
	if cfg.Link.ContextsFile != "" {
		var err error
		contexts, err = iphc.LoadContexts(cfg.Link.ContextsFile)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Node.NodeRole == core.RoleBorderRouter {
		prefix, err := netip.ParsePrefix(cfg.Node.AdvertisedPrefix)
		if err != nil {
			return nil, err
		}
		if err := contexts.Set(1, prefix); err != nil {
			return nil, err
		}
	}
	return contexts, nil
}
