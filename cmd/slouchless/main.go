package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"slouchless/internal/telemetry"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			// The log file may be the only record when running unattended.
			telemetry.LogError("slouchless crashed", fmt.Errorf("panic: %v", r), "stack", string(debug.Stack()))
			fmt.Fprintf(os.Stderr, "slouchless crashed: %v\n", r)
			exit(1)
		}
	}()

	Execute()
}
