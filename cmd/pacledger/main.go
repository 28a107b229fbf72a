package main

import (
	"os"

	"github.com/pacledger/pacledger/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
