package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/executor"
	"github.com/isdmx/coderunner/language"
)

var (
	languageFlag  string
	inputFlag     string
	inputFileFlag string
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute one program and print the result",
	Long: `Execute one program in a sandbox, exactly as POST /api/compile would, and
print the JSON result. The source is read from file, or from stdin when file
is omitted or "-". The language is taken from --language or guessed from the
file extension.

The exit status is 0 when the program succeeded, 1 when it failed or timed
out and 2 when the request could not be executed.

Examples:
  coderunner run main.py
  coderunner run -l cpp --input "3 4" sum.cpp
  echo 'print(input())' | coderunner run -l python --input-file in.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Language of the program")
	runCmd.Flags().StringVar(&inputFlag, "input", "", "Standard input of the program")
	runCmd.Flags().StringVar(&inputFileFlag, "input-file", "", "Read the standard input of the program from this file")
	runCmd.MarkFlagsMutuallyExclusive("input", "input-file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	file := "-"
	if len(args) == 1 {
		file = args[0]
	}
	code, err := readFile(cmd.InOrStdin(), file)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	input := inputFlag
	if inputFileFlag != "" {
		b, err := os.ReadFile(inputFileFlag)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		input = string(b)
	}

	var (
		coord    *executor.Coordinator
		registry *language.Registry
	)
	app := fx.New(
		engineModule(loadRunConfig),
		fx.Populate(&coord, &registry),
	)
	if err := app.Start(cmd.Context()); err != nil {
		return err
	}
	defer app.Stop(context.Background()) //nolint:errcheck // nothing left to report to

	lang := languageFlag
	if lang == "" {
		lang = guessLanguage(registry, file)
	}

	res, err := coord.Execute(cmd.Context(), executor.Request{Language: lang, Code: code, Input: input})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err != nil {
		if encErr := enc.Encode(executor.NewErrorResponse(err)); encErr != nil {
			return encErr
		}
		return exitCodeError(2)
	}
	if err := enc.Encode(executor.NewResponse(res)); err != nil {
		return err
	}
	if !res.Success {
		return exitCodeError(1)
	}
	return nil
}

// loadRunConfig never sweeps: a server sharing the runtime may be executing right now.
func loadRunConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	cfg.Sandbox.SweepOnStart = false
	return cfg, nil
}

func readFile(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(name)
	return string(b), err
}

// guessLanguage returns the language whose source file has the extension of
// name, or "" when there is none or more than one.
func guessLanguage(registry *language.Registry, name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	found := ""
	for id, r := range registry.Recipes() {
		if filepath.Ext(r.SourceFile) != ext {
			continue
		}
		if found != "" {
			return ""
		}
		found = id
	}
	return found
}
