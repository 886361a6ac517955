package main

import (
	"fmt"
	"os"

	"github.com/schererja/drovah/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running drovah: %v\n", err)
		os.Exit(1)
	}
}
