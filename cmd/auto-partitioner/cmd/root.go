// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drauger-os-development/auto-partitioner/pkg/config"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "auto-partitioner",
	Short: "Plans and applies the disk layout for an installation",
	Long:  ``,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var options = struct {
	ConfigPath string
	Debug      bool
}{}

func init() {
	rootCmd.PersistentFlags().StringVar(&options.ConfigPath, "config", config.DefaultPath, "The path to the installer settings file")
	rootCmd.PersistentFlags().BoolVar(&options.Debug, "debug", false, "Enable debug logging")
}

func newLogger() (*zap.Logger, error) {
	if options.Debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
