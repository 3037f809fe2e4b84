// Package main provides the pwtgen CLI for building Penn World Table panels.
package main

import (
	"os"

	"github.com/Yile-Xu/penn-world-tables/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
