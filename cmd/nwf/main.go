package main

import (
	"github.com/nwflabs/nwf/pkg/cli"
)

func main() {
	cli.Execute()
}
