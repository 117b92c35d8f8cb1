// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/modreload/internal/permission"
)

func TestGrants_Has(t *testing.T) {
	tests := []struct {
		name   string
		grants []string
		perm   string
		want   bool
	}{
		{"exact match", []string{"modreload.load"}, "modreload.load", true},
		{"single wildcard matches child", []string{"modreload.*"}, "modreload.unload", true},
		{"single wildcard stops at separator", []string{"economy.*"}, "economy.admin.pay", false},
		{"double wildcard crosses separators", []string{"economy.**"}, "economy.admin.pay", true},
		{"root wildcard", []string{"**"}, "anything.at.all", true},
		{"no match", []string{"modreload.load"}, "modreload.reload", false},
		{"prefix is not a match", []string{"modreload"}, "modreload.load", false},
		{"no grants", nil, "modreload.load", false},
		{"empty permission always allowed", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := permission.NewGrants()
			require.NoError(t, g.Set("console", tt.grants))
			assert.Equal(t, tt.want, g.Has("console", tt.perm))
		})
	}
}

func TestGrants_UnknownSender(t *testing.T) {
	var g permission.Grants
	assert.False(t, g.Has("nobody", "modreload.load"))
	assert.Nil(t, g.Patterns("nobody"))
}

func TestGrants_SetIsAtomic(t *testing.T) {
	g := permission.NewGrants()
	require.NoError(t, g.Set("console", []string{"modreload.*"}))

	err := g.Set("console", []string{"economy.*", "[unclosed"})
	require.Error(t, err)
	assert.Equal(t, []string{"modreload.*"}, g.Patterns("console"), "failed Set must not change grants")

	assert.Error(t, g.Set("", []string{"x"}))
	assert.Error(t, g.Set("console", []string{""}))
}

func TestGrants_Remove(t *testing.T) {
	g := permission.NewGrants()
	require.NoError(t, g.Set("console", []string{"**"}))
	g.Remove("console")
	assert.False(t, g.Has("console", "modreload.load"))
}
