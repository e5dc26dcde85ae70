package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverridesFromFlags(t *testing.T) {
	t.Run("Should map only the flags that were set", func(t *testing.T) {
		root := newRootCmd()
		require.NoError(t, root.ParseFlags([]string{"--overwrite-protect=false", "--model", "tts-1-hd", "--rpm", "30"}))

		assert.Equal(t, map[string]any{
			"overwrite_protect":       "false",
			"model":                   "tts-1-hd",
			"max_requests_per_minute": "30",
		}, overridesFromFlags(root))
	})

	t.Run("Should leave the config untouched without flags", func(t *testing.T) {
		root := newRootCmd()
		require.NoError(t, root.ParseFlags(nil))
		assert.Empty(t, overridesFromFlags(root))
	})

	t.Run("Should protect existing output by default", func(t *testing.T) {
		root := newRootCmd()
		require.NoError(t, root.ParseFlags(nil))
		protect, err := root.Flags().GetBool("overwrite-protect")
		require.NoError(t, err)
		assert.True(t, protect)

		assert.Error(t, newRootCmd().ParseFlags([]string{"--overwrite"}))
	})
}
