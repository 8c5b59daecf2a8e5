package main

import (
	"fmt"
	"os"

	"github.com/ProductBay/vynce/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vynctl: %v\n", err)
		os.Exit(1)
	}
}
