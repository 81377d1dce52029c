package main

import (
	"os"

	deltascmder "github.com/papercomputeco/deltas/cmd/deltas"
)

func main() {
	cmd := deltascmder.NewDeltasCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
