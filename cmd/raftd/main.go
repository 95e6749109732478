// Command raftd runs a GroupHost: it loads the on-disk config for this
// node, opens the segmented log for each configured group, wires a memkv
// state machine to each, and serves peer RPCs over gRPC until it is
// asked to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	raft "github.com/flowraft/raftcore"
	"github.com/flowraft/raftcore/internal/config"
	"github.com/flowraft/raftcore/internal/engine"
	"github.com/flowraft/raftcore/internal/log"
	"github.com/flowraft/raftcore/internal/statemachine/memkv"
	"github.com/flowraft/raftcore/internal/transport/grpcproto"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "raftd: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "raftd",
	Short: "raftd runs one or more Raft groups on this node",
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this node, serving every group named in its config file",
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report peer reachability for one group",
	RunE:  runStatus,
}

func init() {
	startCmd.Flags().String("config", "raftd.yaml", "Path to the node's YAML config file")
	startCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address the Prometheus /metrics endpoint listens on")

	statusCmd.Flags().String("config", "raftd.yaml", "Path to the node's YAML config file")
	statusCmd.Flags().Uint64("group", 0, "Group id to report on")
	statusCmd.Flags().Duration("timeout", 3*time.Second, "Deadline for the status request")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	host := raft.NewHost(cfg.NodeID, raft.WithListenAddress(cfg.ListenAddr), raft.WithDialTimeout(nonZeroOr(cfg.DialTimeout, 5*time.Second)))

	for _, g := range cfg.Groups {
		opts := groupOptions(g)
		sm := memkv.New()
		if _, err := host.AddGroup(g.GroupID, g.DataDir, g.Members, sm, opts...); err != nil {
			return fmt.Errorf("raftd: start group %d: %w", g.GroupID, err)
		}
		log.Infof("raftd: group %d serving at %s", g.GroupID, cfg.ListenAddr)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil && err != http.ErrServerClosed {
			log.Warnf("raftd: metrics endpoint stopped: %v", err)
		}
	}()
	log.Infof("raftd: metrics endpoint at http://%s/metrics", metricsAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := host.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Infof("raftd: shutting down")
	case err := <-errCh:
		return fmt.Errorf("raftd: transport server stopped: %w", err)
	}

	return host.Close()
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	groupID, _ := cmd.Flags().GetUint64("group")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var gcfg *config.GroupConfig
	for i := range cfg.Groups {
		if cfg.Groups[i].GroupID == groupID {
			gcfg = &cfg.Groups[i]
			break
		}
	}
	if gcfg == nil {
		return fmt.Errorf("raftd: group %d is not in %s", groupID, configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	alive := 1
	total := len(gcfg.Members)
	for peerID, addr := range gcfg.Members {
		if peerID == cfg.NodeID {
			continue
		}
		cli, closeFn, err := grpcproto.Dial(addr)
		if err != nil {
			fmt.Printf("peer %d (%s): dial failed: %v\n", peerID, addr, err)
			continue
		}
		resp, err := grpcproto.PingOnce(ctx, cli, engine.PingRequest{GroupID: groupID, NodeID: cfg.NodeID})
		closeFn()
		if err != nil {
			fmt.Printf("peer %d (%s): unreachable: %v\n", peerID, addr, err)
			continue
		}
		if resp.Alive {
			alive++
			fmt.Printf("peer %d (%s): reachable (term %d)\n", peerID, addr, resp.Term)
		} else {
			fmt.Printf("peer %d (%s): reported not alive\n", peerID, addr)
		}
	}

	fmt.Printf("group %d: %d/%d members reachable\n", groupID, alive, total)
	return nil
}

func nonZeroOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func groupOptions(g config.GroupConfig) []raft.GroupOption {
	var opts []raft.GroupOption
	if g.Observer {
		opts = append(opts, raft.WithObserver())
	}
	if g.ElectTimeout > 0 {
		opts = append(opts, raft.WithElectTimeout(g.ElectTimeout))
	}
	if g.HeartbeatInterval > 0 {
		opts = append(opts, raft.WithHeartbeatInterval(g.HeartbeatInterval))
	}
	if g.RPCTimeout > 0 {
		opts = append(opts, raft.WithRPCTimeout(g.RPCTimeout))
	}
	if g.MaxAppendBatch > 0 {
		opts = append(opts, raft.WithMaxAppendBatch(g.MaxAppendBatch))
	}
	return opts
}
