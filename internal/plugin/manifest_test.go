package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	type testCase struct {
		name    string
		input   string
		wantErr bool
	}

	testCases := []testCase{
		{
			name:  "valid",
			input: `{"name": "greeter", "version": "1.0", "description": "says hi"}`,
		},
		{
			name:  "no description",
			input: `{"name": "greeter", "version": "1.0"}`,
		},
		{
			name:    "missing version",
			input:   `{"name": "greeter"}`,
			wantErr: true,
		},
		{
			name:    "empty name",
			input:   `{"name": "", "version": "1.0"}`,
			wantErr: true,
		},
		{
			name:    "name starts with digit",
			input:   `{"name": "9lives", "version": "1.0"}`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			input:   `{"name": "greeter", "version": "1.0", "author": "me"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `greeter 1.0`,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ParseManifest([]byte(tc.input))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "greeter", m.Name)
			assert.Equal(t, "1.0", m.Version)
		})
	}
}
