package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/sourceshift/relaypool"
	"github.com/sourceshift/relaypool/core/config"
	"github.com/sourceshift/relaypool/core/selector"
	"github.com/sourceshift/relaypool/interfaces"
	"github.com/sourceshift/relaypool/pkg/logging"
)

func main() {
	// Manually parse global flags for logging, as they are needed before subcommands.
	var logLevel, logFormat string
	fs := flag.NewFlagSet("global", flag.ContinueOnError)
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
	// Ignore errors, we'll just use defaults if flags are not there.
	_ = fs.Parse(os.Args)

	logging.InitLogger(logLevel, logFormat, nil)

	if len(os.Args) < 2 {
		logging.GetLogger().Error("expected 'select', 'chain', 'stats' or 'monitor' subcommands")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "select":
		selectCmd := flag.NewFlagSet("select", flag.ExitOnError)
		target := selectCmd.String("target", "", "Target host the relayed request is for.")
		region := selectCmd.String("region", "", "Optional region hint.")
		policyTag := selectCmd.String("policy", "", "Optional selection policy name.")
		configFile := selectCmd.String("config", "relaypool.yaml", "Path to the pool YAML file.")
		if err := selectCmd.Parse(os.Args[2:]); err != nil {
			logging.GetLogger().Error("Failed to parse select flags", "error", err)
			os.Exit(1)
		}
		runSelect(*configFile, *target, *region, *policyTag)

	case "chain":
		chainCmd := flag.NewFlagSet("chain", flag.ExitOnError)
		target := chainCmd.String("target", "", "Target host the relayed request is for.")
		hops := chainCmd.Int("hops", 3, "Number of hops in the chain.")
		policyTag := chainCmd.String("policy", "", "Optional selection policy name.")
		configFile := chainCmd.String("config", "relaypool.yaml", "Path to the pool YAML file.")
		if err := chainCmd.Parse(os.Args[2:]); err != nil {
			logging.GetLogger().Error("Failed to parse chain flags", "error", err)
			os.Exit(1)
		}
		runChain(*configFile, *target, *hops, *policyTag)

	case "stats":
		statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
		policyTag := statsCmd.String("policy", "", "Selection policy to score regions under.")
		configFile := statsCmd.String("config", "relaypool.yaml", "Path to the pool YAML file.")
		if err := statsCmd.Parse(os.Args[2:]); err != nil {
			logging.GetLogger().Error("Failed to parse stats flags", "error", err)
			os.Exit(1)
		}
		runStats(*configFile, *policyTag)

	case "monitor":
		monitorCmd := flag.NewFlagSet("monitor", flag.ExitOnError)
		configFile := monitorCmd.String("config", "relaypool.yaml", "Path to the pool YAML file.")
		if err := monitorCmd.Parse(os.Args[2:]); err != nil {
			logging.GetLogger().Error("Failed to parse monitor flags", "error", err)
			os.Exit(1)
		}
		runMonitor(*configFile)

	default:
		logging.GetLogger().Error("expected 'select', 'chain', 'stats' or 'monitor' subcommands", "command", os.Args[1])
		os.Exit(1)
	}
}

func newEngine(configFile string) interfaces.Engine {
	logger := logging.GetLogger()
	cfg, err := config.LoadFileConfig(configFile)
	if err != nil {
		logger.Error("Failed to load pool config", "error", err)
		os.Exit(1)
	}
	engine, err := relaypool.NewEngine(cfg, logger)
	if err != nil {
		logger.Error("Failed to create engine", "error", err)
		os.Exit(1)
	}
	return engine
}

func runSelect(configFile, target, region, policyTag string) {
	logger := logging.GetLogger()
	engine := newEngine(configFile)

	ep, err := engine.Select(selector.Request{
		Target:     target,
		RegionHint: region,
		Policy:     policyTag,
	})
	if err != nil {
		logger.Error("Selection failed", "error", err)
		os.Exit(1)
	}

	m := ep.Metrics()
	fmt.Printf("%s\n", ep.ConnString())
	fmt.Printf("region=%s locality=%s provider=%s latency=%.1fms success=%.2f health=%s\n",
		ep.Region, ep.Locality, ep.Provider, m.LatencyMs, m.SuccessRate, m.Health)
}

func runChain(configFile, target string, hops int, policyTag string) {
	logger := logging.GetLogger()
	engine := newEngine(configFile)

	chain, err := engine.Chain(selector.Request{
		Target:   target,
		Policy:   policyTag,
		HopCount: hops,
	}, nil)
	if err != nil {
		logger.Error("Chain build failed", "error", err)
		os.Exit(1)
	}

	for i, ep := range chain {
		fmt.Printf("hop %d: %s region=%s latency=%.1fms\n", i+1, ep.ConnString(), ep.Region, ep.Metrics().LatencyMs)
	}
}

func runStats(configFile, policyTag string) {
	engine := newEngine(configFile)
	regionStats := engine.StatsForPolicy(policyTag)

	regions := make([]string, 0, len(regionStats))
	for region := range regionStats {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	// Print results in a nice table format.
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	fmt.Fprintln(w, "REGION\tENDPOINTS\tHEALTHY\tAVG SCORE\tAVG LATENCY\tRECOMMENDATION")
	fmt.Fprintln(w, "------\t---------\t-------\t---------\t-----------\t--------------")
	for _, region := range regions {
		rs := regionStats[region]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\t%.1fms\t%s\n",
			region, rs.Count, rs.Healthy, rs.AvgScore, rs.AvgLatencyMs, rs.Recommendation)
	}
	w.Flush()
}

func runMonitor(configFile string) {
	logger := logging.GetLogger()
	engine := newEngine(configFile)

	if err := engine.Start(context.Background()); err != nil {
		logger.Error("Failed to start engine", "error", err)
		os.Exit(1)
	}
	logger.Info("Health monitor running. Press Ctrl+C to exit.")

	// Wait for a shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh

	logger.Info("Received shutdown signal, stopping engine...")
	if err := engine.Stop(); err != nil {
		logger.Error("Error stopping engine", "error", err)
	}
	logger.Info("Engine stopped.")
}
