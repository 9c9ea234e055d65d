package main

import (
	"os"

	"github.com/conneroisu/quilt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
