package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docrag/pkg/app/cliflag"
)

type testOptions struct {
	Name      string
	Count     int
	Tags      []string
	completed bool
	invalid   bool
}

func (o *testOptions) Flags() (fss cliflag.NamedFlagSets) {
	fs := fss.FlagSet("test")
	fs.StringVar(&o.Name, "test.name", "default", "name")
	fs.IntVar(&o.Count, "test.batch-size", 1, "count")
	fs.StringSliceVar(&o.Tags, "test.tags", nil, "tags")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if o.invalid || o.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func runApp(t *testing.T, opts *testOptions, args ...string) (bool, error) {
	t.Helper()
	ran := false
	sub := &cobra.Command{
		Use: "sub",
		RunE: func(*cobra.Command, []string) error {
			ran = true
			return nil
		},
	}
	a := NewApp(WithName("docrag-test"), WithOptions(opts), WithNoVersion(), WithCommands(sub))
	a.Command().SetArgs(append([]string{"sub"}, args...))
	return ran, a.Command().Execute()
}

func TestSubcommandGetsDefaults(t *testing.T) {
	opts := &testOptions{}
	ran, err := runApp(t, opts)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, "default", opts.Name)
	assert.Equal(t, 1, opts.Count)
}

func TestConfigFileEnvAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "docrag.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"test:\n  name: ${DOCRAG_TEST_HOST}-from-file\n  batch-size: 7\n  tags: [a, b]\n"), 0o600))

	t.Setenv("DOCRAG_TEST_HOST", "h1")
	t.Setenv("DOCRAG_TEST_TEST_BATCH_SIZE", "9")

	opts := &testOptions{}
	_, err := runApp(t, opts, "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "h1-from-file", opts.Name)
	assert.Equal(t, 9, opts.Count, "environment overrides config file")
	assert.Equal(t, []string{"a", "b"}, opts.Tags)

	opts = &testOptions{}
	_, err = runApp(t, opts, "--config", cfg, "--test.batch-size", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, opts.Count, "explicit flag wins")
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := runApp(t, &testOptions{}, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidationStopsCommand(t *testing.T) {
	ran, err := runApp(t, &testOptions{invalid: true})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DOCRAG_X", "v")
	assert.Equal(t, "v/v", expandEnv("${DOCRAG_X}/$DOCRAG_X"))
	assert.Equal(t, "${DOCRAG_UNSET_VAR}", expandEnv("${DOCRAG_UNSET_VAR}"))
}
