package main

import (
	"errors"
	"fmt"
	"os"

	// Embedded zoneinfo for hosts without one.
	_ "time/tzdata"

	"github.com/attendbot/attend/internal/projectconfig"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0
	ExitFailure = 1 // A run or command failed
	ExitConfig  = 2 // Configuration is missing or invalid
)

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var cfgErr *projectconfig.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitFailure
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
