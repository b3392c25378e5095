package main

import (
	"os"

	"github.com/operia/operia/internal/cli"
)

func main() {
	cli.Initialize()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
