package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandWiresSubcommandsAndFlags(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["program"])
	assert.True(t, names["read-out"])
	assert.True(t, names["verify"])

	got, err := root.PersistentFlags().GetString("interface")
	assert.NoError(t, err)
	assert.Equal(t, "uart", got)
}
