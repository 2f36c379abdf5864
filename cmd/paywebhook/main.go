package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iurnickita/paywebhook/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           "paywebhook",
		Short:         "Payment provider notification receiver",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("log.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	load := func() (config.Config, error) {
		return config.GetConfig(v, configFile)
	}

	rootCmd.AddCommand(serveCmd(v, load))
	rootCmd.AddCommand(signCmd(load))
	rootCmd.AddCommand(tokenCmd(load))

	return rootCmd
}

type loadConfig func() (config.Config, error)

// bindFlag привязывает флаг команды к ключу конфигурации
func bindFlag(v *viper.Viper, cmd *cobra.Command, key string, flag string) {
	_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
}
