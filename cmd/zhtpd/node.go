package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"zhtp-core/internal/chain"
	"zhtp-core/internal/storage"
)

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "node", Short: "node lifecycle"}
	cmd.AddCommand(nodeStartCmd())
	return cmd
}

func nodeStartCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a zhtp node: mining loop, content store, periodic persistence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			env := chain.Standard
			if cfg.Consensus.Profile == "bootstrap" {
				env = chain.Bootstrap
			}
			bc := chain.New(cfg.Network.ListenAddr, env)

			chainFile := chain.DefaultChainFile(dataDir)
			if err := bc.Load(chainFile); err != nil {
				return fmt.Errorf("load chain state %s: %w", chainFile, err)
			}

			engine := storage.NewEngine(storage.EngineConfig{
				ChunkSize:      int64(cfg.Storage.ChunkSizeBytes),
				MaxContentSize: cfg.Storage.MaxContentSizeBytes,
			}, cfg.Storage.CacheBytes, parseCachePolicy(cfg.Storage.CachePolicy))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logrus.WithFields(logrus.Fields{
				"profile": env.Name,
				"listen":  cfg.Network.ListenAddr,
				"dataDir": dataDir,
			}).Info("zhtpd: node starting")

			bc.RunMiningLoop(ctx, func(b *chain.Blockchain) error { return b.Save(chainFile) })

			logrus.WithField("contents", engine.Stats().Stores).Info("zhtpd: node shutting down")
			return bc.Save(chainFile)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for chain persistence")
	return cmd
}

func parseCachePolicy(s string) storage.EvictionPolicy {
	switch s {
	case "lfu":
		return storage.PolicyLFU
	case "fifo":
		return storage.PolicyFIFO
	case "arc":
		return storage.PolicyARC
	default:
		return storage.PolicyLRU
	}
}
