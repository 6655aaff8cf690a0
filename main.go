package main

import (
	"os"

	"github.com/loftcrm/mailsync/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
