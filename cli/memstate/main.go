package main

import (
	"os"

	memstatecmder "github.com/papercomputeco/memstate/cmd/memstate"
)

func main() {
	cmd := memstatecmder.NewMemstateCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
