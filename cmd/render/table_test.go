package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableEmptyHeaders(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Table(nil, [][]string{{"a"}}, nil))
}

func TestTablePadsShortRows(t *testing.T) {
	t.Parallel()

	out := Table([]string{"Cell", "Plants"}, [][]string{{"C5", "3"}, {"B6"}}, []Alignment{AlignLeft, AlignRight})

	assert.Contains(t, strings.ToLower(out), "cell")
	assert.Contains(t, out, "C5")
	assert.Contains(t, out, "B6")
	assert.True(t, strings.HasPrefix(out, "╭"), "rounded style")
	// header, separator, two rows and two borders
	assert.Len(t, strings.Split(out, "\n"), 6)
}

func TestKeyValue(t *testing.T) {
	t.Parallel()

	out := KeyValue("Metric", "Value", [][2]string{{"Photos analyzed", "4"}})
	assert.Contains(t, out, "Photos analyzed")
	assert.Contains(t, out, "4")
}
