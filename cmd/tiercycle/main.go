package main

import (
	"os"

	"github.com/tiercycle/tiercycle/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
