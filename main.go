package main

import (
	"github.com/sst/mentions/cmd"
	"github.com/sst/mentions/internal/logging"
	"github.com/sst/mentions/internal/status"
)

func main() {
	defer logging.RecoverPanic("main", func() {
		status.Error("Application terminated due to unhandled panic")
	})

	cmd.Execute()
}
