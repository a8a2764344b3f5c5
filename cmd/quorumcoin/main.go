package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quorumcoin/witness-network/internal/events"
	"github.com/quorumcoin/witness-network/internal/network"
	"github.com/quorumcoin/witness-network/internal/statestore"
	"github.com/quorumcoin/witness-network/pkg/config"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "quorumcoin",
		Short: "witness-quorum coin validation network simulation harness",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Debugf("no .env file loaded: %v", err)
			}
			c, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = c
			if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
				log.SetLevel(lvl)
			}
			return nil
		},
	}
	rootCmd.AddCommand(testnetCmd())
	rootCmd.AddCommand(transferCmd())
	rootCmd.AddCommand(simulateCmd())
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func buildNetwork() (*network.Network, *events.Recorder, error) {
	opts := network.DefaultOptions()
	opts.NumAgents = cfg.Network.NumAgents
	opts.RequiredWitnesses = cfg.Network.RequiredWitnesses
	opts.PeerTimeout = time.Duration(cfg.Network.PeerTimeoutMS) * time.Millisecond
	opts.MaxRetries = cfg.Network.MaxRetries
	opts.NetworkID = cfg.Network.ID
	opts.DataDir = cfg.Persistence.DataDir
	if cfg.Persistence.SnapshotEveryS > 0 {
		opts.StatsInterval = time.Duration(cfg.Persistence.SnapshotEveryS) * time.Second
	}
	opts.AgentConfig.MaxFailuresBeforeBan = cfg.Agent.MaxFailuresBeforeBan
	opts.AgentConfig.RecencyCacheCap = cfg.Agent.RecencyCacheCap
	opts.AgentConfig.BloomExpectedItems = cfg.Agent.BloomExpectedItems
	opts.AgentConfig.BloomFalsePositive = cfg.Agent.BloomFalsePositive

	rec := events.NewRecorder()
	sink := events.Func(func(e events.Event) {
		rec.Emit(e)
		log.Infof("event %s tx=%s peer=%s reason=%s", e.Kind, e.TxID, e.PeerID, e.Reason)
	})

	var store statestore.Store = statestore.NullStore{}
	if cfg.Persistence.DataDir != "" {
		s, err := statestore.NewJSONFileStore(cfg.Persistence.DataDir)
		if err != nil {
			return nil, nil, err
		}
		store = s
	}

	n, err := network.New(opts, sink, store)
	if err != nil {
		return nil, nil, err
	}
	return n, rec, nil
}

func testnetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "testnet"}

	var coinsPerAgent int
	var runFor time.Duration
	start := &cobra.Command{
		Use:   "start",
		Short: "initialize a witness network and run its background loops for a fixed duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _, err := buildNetwork()
			if err != nil {
				return err
			}
			if err := n.Initialize(coinsPerAgent); err != nil {
				return err
			}
			n.Start()
			fmt.Printf("testnet %q running with %d agents, quorum %d\n", cfg.Network.ID, n.NumAgents(), cfg.Network.RequiredWitnesses)
			time.Sleep(runFor)
			n.Shutdown()
			return nil
		},
	}
	start.Flags().IntVar(&coinsPerAgent, "coins-per-agent", 3, "coins minted per agent at startup")
	start.Flags().DurationVar(&runFor, "for", 5*time.Second, "how long to run before shutting down")
	cmd.AddCommand(start)
	return cmd
}

func transferCmd() *cobra.Command {
	var from, to int
	var coinIdx int
	var coinsPerAgent int
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "initialize a network and drive a single transfer through the witness quorum",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _, err := buildNetwork()
			if err != nil {
				return err
			}
			if err := n.Initialize(coinsPerAgent); err != nil {
				return err
			}
			result, err := n.TransferCoin(from, to, coinIdx)
			if err != nil {
				return err
			}
			fmt.Printf("transfer result: success=%v status=%q reason=%q tx=%s\n", result.Success, result.Status, result.Reason, result.TxID)
			return nil
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "sender agent index")
	cmd.Flags().IntVar(&to, "to", 1, "recipient agent index")
	cmd.Flags().IntVar(&coinIdx, "coin", 0, "coin index in sender's wallet")
	cmd.Flags().IntVar(&coinsPerAgent, "coins-per-agent", 3, "coins minted per agent at startup")
	return cmd
}

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "simulate"}

	var from, to, alt, coinIdx, coinsPerAgent int
	doubleSpend := &cobra.Command{
		Use:   "double-spend",
		Short: "run a real transfer followed by a forged replay of the same coin id",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _, err := buildNetwork()
			if err != nil {
				return err
			}
			if err := n.Initialize(coinsPerAgent); err != nil {
				return err
			}
			first, second, err := n.SimulateDoubleSpend(from, to, alt, coinIdx)
			if err != nil {
				return err
			}
			fmt.Printf("first transfer:  success=%v reason=%q\n", first.Success, first.Reason)
			fmt.Printf("forged transfer: success=%v reason=%q\n", second.Success, second.Reason)
			return nil
		},
	}
	doubleSpend.Flags().IntVar(&from, "from", 0, "sender agent index")
	doubleSpend.Flags().IntVar(&to, "to", 1, "recipient of the real transfer")
	doubleSpend.Flags().IntVar(&alt, "alt", 2, "recipient of the forged replay")
	doubleSpend.Flags().IntVar(&coinIdx, "coin", 0, "coin index in sender's wallet")
	doubleSpend.Flags().IntVar(&coinsPerAgent, "coins-per-agent", 3, "coins minted per agent at startup")
	cmd.AddCommand(doubleSpend)
	return cmd
}
