// Copyright © 2018 Enrico Stahn <enrico.stahn@gmail.com>
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd contains the pw-queryd CLI commands.
package cmd

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perfwatcher/pw-queryd/fsnamesource"
	"github.com/perfwatcher/pw-queryd/handlers"
	"github.com/perfwatcher/pw-queryd/jsonrpc"
	"github.com/perfwatcher/pw-queryd/queryserver"
	"github.com/perfwatcher/pw-queryd/snapshot"
)

var log = logrus.New()

// Version is reported by the CLI, set from main's build-time variables.
var Version string

var cfgFile, logLevel string

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "pw-queryd",
	Short: "Serves dashboard JSON-RPC queries over a metrics host's name index",
	Long: `pw-queryd embeds the concurrent JSON-RPC 2.0 query engine a
perfwatcher-style metrics collector exposes to dashboards: live metric
name freshness (pw_get_status, pw_get_metric) and the on-disk
host/plugin/type data hierarchy (pw_get_dir_hosts and friends).`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to
// happen once to RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pw-queryd.yaml)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log.level", "info", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error, fatal]")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".pw-queryd")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// initLogger configures the log level and wires the shared logrus
// instance into every package behind its SetLogger seam.
func initLogger() {
	if value := os.Getenv("PWQUERYD_LOG_LEVEL"); value != "" {
		logLevel = value
	}

	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		lvl = logrus.InfoLevel
		log.Fatalf("Could not set log level to '%v'.", logLevel)
	}
	log.SetLevel(lvl)

	// *logrus.Logger already satisfies logging.Logger (Info/Infof/...),
	// so every package's SetLogger seam takes it directly.
	snapshot.SetLogger(log)
	jsonrpc.SetLogger(log)
	handlers.SetLogger(log)
	queryserver.SetLogger(log)
	fsnamesource.SetLogger(log)
}

// mapEnvVars binds an environment variable to a cobra flag for every
// entry in envs, working around viper.BindEnv's flag-precedence quirks
// (https://github.com/spf13/viper/issues/461) the way the teacher's
// own per-command init() does.
func mapEnvVars(envs map[string]string, cmd *cobra.Command) {
	for env, flagName := range envs {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		flag.Usage = fmt.Sprintf("%v [env %v]", flag.Usage, env)
		if value := os.Getenv(env); value != "" {
			if err := flag.Value.Set(value); err != nil {
				log.Error(err)
			}
		}
	}
}
