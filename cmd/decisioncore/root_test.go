package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCommand_Creation(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "decisioncore", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestNewRootCommand_SubcommandsMounted(t *testing.T) {
	cmd := newRootCommand()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"decide", "version", "abtest", "serve"} {
		assert.True(t, names[want], "expected subcommand %q to be mounted", want)
	}
}

func TestNewRootCommand_PersistentFlags(t *testing.T) {
	cmd := newRootCommand()
	pf := cmd.PersistentFlags()
	for _, name := range []string{"config", "log-level", "production"} {
		assert.NotNil(t, pf.Lookup(name), "expected persistent flag %q", name)
	}
}

func TestGetAppContext_FallsBackWithoutPersistentPreRun(t *testing.T) {
	cmd := newDecideCommand()
	ac := getAppContext(cmd)
	assert.NotNil(t, ac)
	assert.NotNil(t, ac.cfg)
	assert.NotNil(t, ac.metrics)
}
