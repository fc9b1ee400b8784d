package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDirFromArgs(t *testing.T) {
	t.Setenv("JOURNAL_CONFIG_DIR", "")

	assert.Equal(t, "/tmp/a", configDirFromArgs([]string{"trades", "list", "--config", "/tmp/a"}))
	assert.Equal(t, "/tmp/b", configDirFromArgs([]string{"--config=/tmp/b", "serve"}))
	assert.Equal(t, "", configDirFromArgs([]string{"trades", "list"}))
	assert.Equal(t, "", configDirFromArgs([]string{"--", "--config", "/tmp/c"}))
	assert.Equal(t, "", configDirFromArgs([]string{"--config"}))

	t.Setenv("JOURNAL_CONFIG_DIR", "/tmp/env")
	assert.Equal(t, "/tmp/env", configDirFromArgs(nil))
}
