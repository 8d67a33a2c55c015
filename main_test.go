package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "dispatch", "migrate"})
}

func TestMigrate_RequiresDatabase(t *testing.T) {
	t.Setenv("DB_CONNECTION_STRING", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"migrate"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_CONNECTION_STRING")
}

func TestDispatch_FailsFastWithoutCredentials(t *testing.T) {
	t.Setenv("CRON_SECRET", "secret")
	t.Setenv("GOOGLE_AI_API_KEY", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"dispatch"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_AI_API_KEY")
}
