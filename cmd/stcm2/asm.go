package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/stcm2/pkg/asm"
)

var asmCmd = &cobra.Command{
	Use:   "asm <input> <output>",
	Short: "Assemble a text listing back into a script binary",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		in, err := os.Open(args[0])
		if err != nil {
			fail("%v", err)
		}
		defer in.Close()

		f, err := asm.Assemble(in, names, codec)
		if err != nil {
			fail("%s: %v", args[0], err)
		}
		data, err := f.Encode()
		if err != nil {
			fail("%s: %v", args[0], err)
		}
		if err := os.WriteFile(args[1], data, 0644); err != nil {
			fail("%v", err)
		}
		log.Debugf("assembled %d actions into %d bytes", len(f.Actions), len(data))
	},
}
