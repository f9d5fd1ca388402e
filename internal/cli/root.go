package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "security-agent",
	Short: "Lumina - AI security assistant for SafeLine WAF",
	Long: `Lumina is a chat assistant for SafeLine WAF operators. It reads traffic,
attack events and documentation, and changes WAF settings only after the
operator confirms each change with a one-time code.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file (default: ~/.security-agent/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logger level (debug, info, warn, error)")
}

func Execute() error {
	return rootCmd.Execute()
}
