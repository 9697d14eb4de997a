package main

import (
	"fmt"
	"os"

	"dnsmedic/cmd"
)

var version = "1.0.0"

func main() {
	if err := cmd.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
