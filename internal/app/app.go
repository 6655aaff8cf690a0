package app

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "mailsync",
	Short: "Incremental mailbox sync service",
	Long:  "Syncs connected mail accounts into per-workspace Postgres schemas, deduplicating against already-persisted threads and messages.",
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "config file (default ./mailsync.yaml)")
}

func initConfig() {
	if cfg, _ := rootCmd.PersistentFlags().GetString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.SetConfigName("mailsync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("MAILSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file is optional; env vars can carry everything.
	_ = viper.ReadInConfig()
}

func Execute() error {
	return rootCmd.Execute()
}
