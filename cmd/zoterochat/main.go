package main

import (
	"os"

	"github.com/hupe1980/zoterochat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
