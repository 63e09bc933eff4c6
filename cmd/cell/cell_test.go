package cell

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCellCommandQuadrants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		heading string
		want    string
	}{
		{"45", "C5\n"},
		{"135", "C6\n"},
		{"225", "B6\n"},
		{"315", "B5\n"},
		{"360", "C5\n"},
		{"450", "C6\n"},
	}

	for _, tt := range tests {
		t.Run(tt.heading, func(t *testing.T) {
			t.Parallel()
			out, err := run(t, "2", "5", tt.heading)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCellCommandRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := run(t, "two", "5", "45")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid x "two"`)

	_, err = run(t, "2", "5")
	require.Error(t, err)

	_, err = run(t, "--columns", "2", "2", "5", "45")
	require.Error(t, err, "column C does not exist in a two column field")

	_, err = run(t, "--policy", "spiral", "2", "5", "45")
	require.Error(t, err)
}

func TestCellCommandNearestLinePolicy(t *testing.T) {
	t.Parallel()

	out, err := run(t, "--policy", "nearestline", "2.4", "5.1", "45")
	require.NoError(t, err)
	assert.Equal(t, "C6\n", out)
}
