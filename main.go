package main

import (
	"os"

	"github.com/EffortlessMetrics/buildfix/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
