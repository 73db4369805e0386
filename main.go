package main

import (
	"github.com/sidkik/revsync/cmd"
	"github.com/sidkik/revsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
