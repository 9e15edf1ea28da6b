// Package cli provides shared CLI utilities for kbvecd.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvAnnotation on a flag names the environment variable it overrides.
const EnvAnnotation = "kbvec_env"

// FlagSchema represents the JSON schema for a command flag.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Env         string `json:"env,omitempty"`
	Required    bool   `json:"required"`
}

// CommandSchema represents the JSON schema for a command.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// GenerateSchema generates a JSON schema for a cobra command.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
		Flags:       extractFlags(cmd),
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Name() == "completion" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}

	return schema
}

func extractFlags(cmd *cobra.Command) []FlagSchema {
	var flags []FlagSchema

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help-json" || f.Name == "help" || f.Hidden {
			return
		}
		flags = append(flags, flagToSchema(f))
	})

	return flags
}

func flagToSchema(f *pflag.Flag) FlagSchema {
	schema := FlagSchema{
		Name:        f.Name,
		Shorthand:   f.Shorthand,
		Type:        f.Value.Type(),
		Default:     f.DefValue,
		Description: f.Usage,
	}

	if _, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok {
		schema.Required = true
	}
	if env := f.Annotations[EnvAnnotation]; len(env) > 0 {
		schema.Env = env[0]
	}

	return schema
}

// BindEnv records on a flag which environment variable it overrides.
func BindEnv(cmd *cobra.Command, flag, env string) {
	_ = cmd.Flags().SetAnnotation(flag, EnvAnnotation, []string{env})
}

// WriteSchema writes the command schema as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	output, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// AddHelpJSONFlag adds the --help-json flag to a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("help-json", false, "Output command schema as JSON")
}

// CheckHelpJSON checks os.Args for --help-json, prints the schema of the
// addressed command and exits. Call this before cmd.Execute() so the flag
// is handled before arg validation.
func CheckHelpJSON(rootCmd *cobra.Command) {
	target, ok := HelpJSONTarget(rootCmd, os.Args[1:])
	if !ok {
		return
	}
	if err := WriteSchema(os.Stdout, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// HelpJSONTarget returns the command addressed by the words before --help-json.
func HelpJSONTarget(rootCmd *cobra.Command, args []string) (*cobra.Command, bool) {
	for i, arg := range args {
		if arg == "--help-json" {
			return findTargetCommand(rootCmd, args[:i]), true
		}
	}
	return nil, false
}

func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	if len(args) == 0 {
		return cmd
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return findTargetCommand(sub, args[1:])
		}
	}

	return cmd
}
