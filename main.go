// Entrypoint for the scheduler agent's Cobra CLI; delegates to cmd/root.go.
package main

import (
	"github.com/inference-sim/sched-core/cmd"
)

func main() {
	cmd.Execute()
}
