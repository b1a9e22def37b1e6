// Package extract scrapes decoded text cells out of script files for
// translation tooling. Rows carry enough coordinates to map a line
// back to its action, and go to a sqlite database or TSV.
package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chazu/stcm2/pkg/disasm"
	"github.com/chazu/stcm2/pkg/pool"
	"github.com/chazu/stcm2/pkg/stcm2"
	"github.com/chazu/stcm2/pkg/textenc"
)

// Log carries progress at debug level and data loss at warn level.
// The command line raises the level with -v.
var Log = logrus.New()

// Row is one text cell: where it sits and what it says. Label is the
// nearest label at or before the action inside its chunk, usually the
// routine the line belongs to.
type Row struct {
	File    string
	Address uint32
	Param   int
	Label   string
	Body    string
}

// Scan collects every text cell referenced by the file's actions, in
// action order. Pointers to undecodable cells are logged and skipped.
// Label the file first (disasm.Autolabel) if routine names matter.
func Scan(file string, f *stcm2.File, codec textenc.Codec) []Row {
	var rows []Row
	for _, chunk := range disasm.Chunks(f) {
		label := ""
		for _, a := range chunk.Actions {
			if l := a.Label(false); l != nil {
				label = string(l)
			}
			for i, p := range a.Params {
				if p.Kind != stcm2.DataPointer {
					continue
				}
				c, _, err := pool.Decode(a.Data, int(p.Arg))
				if err != nil {
					Log.WithFields(logrus.Fields{
						"file":   file,
						"action": fmt.Sprintf("%#x", a.Addr),
						"param":  i,
					}).Warn("data pointer to no cell, skipped")
					continue
				}
				if c.Kind != pool.Text {
					continue
				}
				rows = append(rows, Row{
					File:    file,
					Address: a.Addr,
					Param:   i,
					Label:   label,
					Body:    pool.DecodeReplacing(codec, c.Text),
				})
			}
		}
	}
	Log.WithFields(logrus.Fields{"file": file, "rows": len(rows)}).Debug("scanned text cells")
	return rows
}

// WriteTSV writes rows as tab separated lines. Tabs, newlines and
// backslashes in text fields are escaped so one row stays one line.
func WriteTSV(w io.Writer, rows []Row) error {
	for _, r := range rows {
		_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			r.File, r.Address, r.Param, escapeTSV(r.Label), escapeTSV(r.Body))
		if err != nil {
			return err
		}
	}
	return nil
}

var tsvEscaper = strings.NewReplacer("\\", `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)

func escapeTSV(s string) string {
	return tsvEscaper.Replace(s)
}
