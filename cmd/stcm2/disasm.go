package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/stcm2/pkg/disasm"
)

var disasmOpts disasm.Options

func init() {
	disasmCmd.Flags().BoolVarP(&disasmOpts.Addresses, "addresses", "a", false, "Annotate every line with its code offset")
	disasmCmd.Flags().BoolVarP(&disasmOpts.Junk, "junk", "j", false, "Keep unreferenced bytes for bit exact reassembly")
}

var disasmCmd = &cobra.Command{
	Use:   "disasm <file>",
	Short: "Disassemble a script binary to text on stdout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f := decodeFile(args[0])
		if err := disasm.Autolabel(f); err != nil {
			fail("%s: %v", args[0], err)
		}
		if err := disasm.Write(os.Stdout, f, names, codec, disasmOpts); err != nil {
			fail("%s: %v", args[0], err)
		}
		log.Debugf("disassembled %d actions", len(f.Actions))
	},
}
