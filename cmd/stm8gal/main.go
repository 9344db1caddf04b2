// Command stm8gal is the host-side programmer CLI: it binds
// pkg/config's flags onto a cobra root command, constructs the
// requested transport, and drives pkg/orchestrator.Run, logging
// progress through zerolog the way the rest of the corpus's CLIs do.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MarkStokes71/stm8gal/pkg/config"
)

var (
	cfgFile string
	verbose bool
	log     zerolog.Logger
	v       = viper.New()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stm8gal",
		Short: "Host-side BSL programmer for STM8-family microcontrollers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./stm8gal.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
	if err := config.BindFlags(v, root.PersistentFlags()); err != nil {
		panic(err) // only fails on a programming error in the flag definitions above
	}

	root.AddCommand(newProgramCmd())
	root.AddCommand(newReadOutCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// loadConfig reads cfgFile (or ./stm8gal.yaml, if present), layers the
// root command's already-bound persistent flags and any STM8GAL_ env
// vars on top, and returns the resulting config.Config.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("stm8gal: reading config file: %w", err)
		}
	} else {
		v.SetConfigName("stm8gal")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("stm8gal: reading config file: %w", err)
			}
		}
	}
	return config.Load(v)
}
