package main

import (
	"os"

	"github.com/ostanin/quizpair/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
