package main

import (
	"os"

	"github.com/linkstate/routerd/cmd/routersim"
)

func main() {
	os.Exit(routersim.Run(os.Args[1:]))
}
