package main

import (
	"fmt"
	"os"

	tracenotescmder "github.com/papercomputeco/tracenotes/cmd/tracenotes"
)

func main() {
	cmd := tracenotescmder.NewTracenotesCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
