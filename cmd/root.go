/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mes-operations",
	Short: "MES work-order operation lifecycle service",
	Long: `mes-operations is a REST API server for manufacturing work-order operations.
It tracks each operation through its lifecycle (PLANNED, RELEASED, IN_PROGRESS,
ON_HOLD, FINISHED, CANCELLED), validates changes against manufacturing rules,
and publishes operation events to webhooks and realtime subscribers.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: search ./config.yaml, ./config, $HOME/.mes-operations)")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}
