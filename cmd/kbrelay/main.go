package main

import (
	"os"

	"github.com/PabloGalante/kbrelay/cmd/kbrelay/cmds"
)

func main() {
	if err := cmds.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
