package main

import (
	"github.com/camelspotter/libinstrument/pkg/cmd"
)

func main() {
	cmd.Execute()
}
