package main

import (
	"os"

	"github.com/dshills/galeview/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
