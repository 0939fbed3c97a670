package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/language"
)

var namesOnlyFlag bool

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the configured languages",
	Long: `Print the language recipes in effect, after defaults, the configuration
file and environment overrides are applied, as YAML.`,
	Args: cobra.NoArgs,
	RunE: runLanguages,
}

func init() {
	languagesCmd.Flags().BoolVar(&namesOnlyFlag, "names", false, "Print only the language identifiers")
	rootCmd.AddCommand(languagesCmd)
}

func runLanguages(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	registry, err := language.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if namesOnlyFlag {
		for _, id := range registry.Languages() {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]map[string]language.Recipe{"languages": registry.Recipes()}); err != nil {
		return err
	}
	return enc.Close()
}
