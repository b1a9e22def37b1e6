package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/stcm2/pkg/asm"
	"github.com/chazu/stcm2/pkg/disasm"
	"github.com/chazu/stcm2/pkg/stcm2"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file>...",
	Short: "Check that disassembly and reassembly reproduce each file",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		bad := 0
		for _, path := range args {
			if err := verifyFile(path); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				bad++
				continue
			}
			fmt.Printf("%s: ok\n", path)
		}
		if bad > 0 {
			os.Exit(1)
		}
	},
}

func verifyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := stcm2.Decode(data)
	if err != nil {
		return err
	}
	if err := disasm.Autolabel(f); err != nil {
		return err
	}
	var text bytes.Buffer
	if err := disasm.Write(&text, f, names, codec, disasm.Options{Junk: true}); err != nil {
		return err
	}
	f2, err := asm.Assemble(&text, names, codec)
	if err != nil {
		return err
	}
	// The metadata words and the trailer have no text form; carry them
	// over so the comparison covers the transcoded sections.
	f2.Reserved = f.Reserved
	f2.Unknown = f.Unknown
	f2.Trailer = f.Trailer
	out, err := f2.Encode()
	if err != nil {
		return err
	}
	if !bytes.Equal(out, data) {
		return errors.New("reassembly differs")
	}
	return nil
}
