package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() *cobra.Command {
	root := &cobra.Command{Use: "kbvecd", Short: "root"}
	AddHelpJSONFlag(root)

	serve := &cobra.Command{Use: "serve", Short: "Start the API server", Run: func(*cobra.Command, []string) {}}
	serve.Flags().StringP("port", "p", "", "Port to listen on")
	BindEnv(serve, "port", "KB_PORT")

	pairs := &cobra.Command{Use: "pairs", Short: "List pairs", Run: func(*cobra.Command, []string) {}}
	pairs.Flags().Float64("threshold", 0.7, "Minimum similarity")
	pairs.Flags().String("bucket", "", "Bucket")
	_ = pairs.MarkFlagRequired("bucket")

	hidden := &cobra.Command{Use: "debug", Hidden: true, Run: func(*cobra.Command, []string) {}}

	root.AddCommand(serve, pairs, hidden)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testRoot())

	assert.Equal(t, "kbvecd", schema.Name)
	require.Len(t, schema.Subcommands, 2)

	var names []string
	for _, sub := range schema.Subcommands {
		names = append(names, sub.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "pairs"}, names)
}

func TestGenerateSchema_FlagDetails(t *testing.T) {
	root := testRoot()

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	flags := GenerateSchema(serve).Flags
	require.Len(t, flags, 1)
	assert.Equal(t, FlagSchema{
		Name:        "port",
		Shorthand:   "p",
		Type:        "string",
		Description: "Port to listen on",
		Env:         "KB_PORT",
	}, flags[0])

	pairs, _, err := root.Find([]string{"pairs"})
	require.NoError(t, err)
	for _, f := range GenerateSchema(pairs).Flags {
		switch f.Name {
		case "bucket":
			assert.True(t, f.Required)
		case "threshold":
			assert.False(t, f.Required)
			assert.Equal(t, "0.7", f.Default)
		}
	}
}

func TestHelpJSONTarget(t *testing.T) {
	root := testRoot()

	target, ok := HelpJSONTarget(root, []string{"serve", "--help-json"})
	require.True(t, ok)
	assert.Equal(t, "serve", target.Name())

	target, ok = HelpJSONTarget(root, []string{"--help-json"})
	require.True(t, ok)
	assert.Equal(t, "kbvecd", target.Name())

	target, ok = HelpJSONTarget(root, []string{"unknown", "--help-json"})
	require.True(t, ok)
	assert.Equal(t, "kbvecd", target.Name())

	_, ok = HelpJSONTarget(root, []string{"serve", "--port", "9090"})
	assert.False(t, ok)
}

func TestWriteSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSchema(&buf, testRoot()))

	var decoded CommandSchema
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "kbvecd", decoded.Name)
	assert.Len(t, decoded.Subcommands, 2)
}
