// Command legisync serves and follows live lists of legislative records.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jgarciait/osl-app-ct-sub002/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		code := cli.GetExitCode(err)
		// ExitFailure results (denied, failed scenarios, invalid policy)
		// were already reported on stdout.
		if code != cli.ExitFailure {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(code)
	}
}
