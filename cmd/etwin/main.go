package main

import (
	"os"

	"github.com/eternaltwin/etwin/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		if app.IsUsageError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
