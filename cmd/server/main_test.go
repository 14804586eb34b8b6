package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr string
	}{
		{name: "defaults", args: nil, want: options{}},
		{name: "worker mode", args: []string{"-mode=worker"}, want: options{mode: "worker"}},
		{name: "api mode", args: []string{"-mode", "api"}, want: options{mode: "api"}},
		{name: "migrate up", args: []string{"-migrate=up"}, want: options{migrate: "up"}},
		{name: "unknown mode", args: []string{"-mode=batch"}, wantErr: `invalid -mode "batch"`},
		{name: "unknown migration", args: []string{"-migrate=redo"}, wantErr: `invalid -migrate "redo"`},
		{name: "unknown flag", args: []string{"-port=1"}, wantErr: "flag provided but not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewWorkerID(t *testing.T) {
	a, b := newWorkerID(), newWorkerID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^.+-[0-9a-f]{8}$`, a)
}
