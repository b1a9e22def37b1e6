package main

import (
	"fmt"
	"os"

	"github.com/chazu/stcm2/pkg/stcm2"
)

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func decodeFile(path string) *stcm2.File {
	data, err := os.ReadFile(path)
	if err != nil {
		fail("%v", err)
	}
	f, err := stcm2.Decode(data)
	if err != nil {
		fail("%s: %v", path, err)
	}
	return f
}
