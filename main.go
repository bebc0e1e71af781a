package main

import (
	"os"

	"github.com/harrisonrobin/tasklink/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
