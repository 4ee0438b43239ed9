// The main package for the match pipeline executable.
package main

import (
	"github.com/JakeFAU/ncaa-match-pipeline/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
