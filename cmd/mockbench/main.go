// cmd/mockbench/main.go
package main

import (
	"os"

	cmd "github.com/mwiater/mockbench/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
	exit           = os.Exit
)

// main delegates to the cobra root command and exits with its status.
func main() {
	setVersionInfo(version, commit, date)
	if code := executeCmd(); code != 0 {
		exit(code)
	}
}
