package main

import (
	"os"

	"github.com/someengineering/fixattiosync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
