package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServeCommandHasBothProtocols(t *testing.T) {
	names := map[string]bool{}
	for _, c := range serveCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["http"])
	assert.True(t, names["ftp"])
}

func TestSharedFlagsRegisteredOnBothSubcommands(t *testing.T) {
	for _, c := range []string{"root", "threads", "admin-addr"} {
		assert.NotNil(t, serveHTTPCmd.Flags().Lookup(c))
		assert.NotNil(t, serveFTPCmd.Flags().Lookup(c))
	}
}
