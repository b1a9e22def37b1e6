package main

import (
	"bufio"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/stcm2/pkg/disasm"
	"github.com/chazu/stcm2/pkg/extract"
)

var stringsOut string

func init() {
	stringsCmd.Flags().StringVarP(&stringsOut, "out", "o", "", "Write rows to this sqlite database instead of TSV on stdout")
}

var stringsCmd = &cobra.Command{
	Use:   "strings <file>...",
	Short: "Dump decoded text cells to a sqlite database or TSV",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var db *extract.DB
		if stringsOut != "" {
			var err error
			if db, err = extract.OpenDB(stringsOut); err != nil {
				fail("%v", err)
			}
			defer db.Close()
		}
		out := bufio.NewWriter(os.Stdout)

		for _, path := range args {
			f := decodeFile(path)
			if err := disasm.Autolabel(f); err != nil {
				fail("%s: %v", path, err)
			}
			rows := extract.Scan(path, f, codec)
			if db != nil {
				if err := db.Add(rows); err != nil {
					fail("%s: %v", path, err)
				}
				continue
			}
			if err := extract.WriteTSV(out, rows); err != nil {
				fail("%v", err)
			}
		}
		if err := out.Flush(); err != nil {
			fail("%v", err)
		}
	},
}
