package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chazu/stcm2/pkg/extract"
	"github.com/chazu/stcm2/pkg/mnemonics"
	"github.com/chazu/stcm2/pkg/textenc"
)

var log = logrus.New()

var (
	configFile string
	encoding   string
	verbose    bool

	names *mnemonics.Table
	codec textenc.Codec
)

var rootCmd = &cobra.Command{
	Use:   "stcm2",
	Short: "Transcoder between STCM2 script binaries and an assemblable text form",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
			extract.Log.SetLevel(logrus.DebugLevel)
		}
		var err error
		names = mnemonics.Default()
		if configFile != "" {
			if names, err = mnemonics.Load(configFile); err != nil {
				return err
			}
		}
		codec, err = textenc.ForName(encoding)
		return err
	},
	Run: func(cmd *cobra.Command, args []string) {
		// If no arguments passed, we should fallback to help
		cmd.HelpFunc()(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Mnemonics config file (TOML)")
	rootCmd.PersistentFlags().StringVarP(&encoding, "encoding", "e", "utf-8", "Cell text encoding: utf-8 or sjis")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug detail")

	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(asmCmd)
	rootCmd.AddCommand(stringsCmd)
	rootCmd.AddCommand(verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
