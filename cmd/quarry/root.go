package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quarrydev/quarry/config"
	"github.com/quarrydev/quarry/types"
)

var (
	configPath string
	storeName  string
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Quarry CLI",
	Long:  "Quarry is a uniform document-store library; this CLI drives stores described by a YAML topology file.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to topology file (required)")
	rootCmd.PersistentFlags().StringVarP(&storeName, "store", "s", "", "store entry to operate on")
	_ = rootCmd.MarkPersistentFlagRequired("config")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(tagCmd)
}

// loadStore builds and connects the store named by --store from the
// topology file.
func loadStore() (types.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storeName == "" {
		return nil, fmt.Errorf("--store is required; configured stores: %v", cfg.StoreNames())
	}
	s, err := cfg.Build(storeName)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", s.Name(), err)
	}
	return s, nil
}
