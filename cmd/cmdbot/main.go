// Command cmdbot runs the chat command bot and administers its stored
// commands.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(cliMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// cliMain is a testable entrypoint. It accepts argv (excluding program
// name) and the standard streams and returns the process exit code.
func cliMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
