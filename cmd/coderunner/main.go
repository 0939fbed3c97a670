package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "coderunner",
	Short: "CodeRunner - sandboxed code execution engine",
	Long: `CodeRunner compiles and runs untrusted C++, Python and Java programs in
disposable containers with no network, a fixed memory and CPU ceiling and
hard time limits.

It serves an HTTP JSON API and an MCP tool, or runs a single program from
the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to the configuration file (default ./coderunner.yaml)")
}

// exitCodeError ends the process with the given status and no further output.
type exitCodeError int

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var code exitCodeError
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
