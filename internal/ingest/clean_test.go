package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"articlereview/internal/types"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		rep  CleanReport
	}{
		{name: "newlines", in: "a\r\nb\rc", want: "a\nb\nc"},
		{name: "null bytes", in: "x\x00y\x00", want: "xy", rep: CleanReport{NullBytes: 2}},
		{name: "control chars", in: "a\x07b\x1bc", want: "abc", rep: CleanReport{ControlChars: 2}},
		{name: "horizontal whitespace", in: "  a   \t b  ", want: "a b"},
		{name: "blank lines", in: "p1\n\n\n\n\np2\n \n \n \np3", want: "p1\n\np2\n\np3"},
		{name: "keeps paragraph break", in: "p1\n\np2", want: "p1\n\np2"},
		{name: "unicode survives", in: "Café\u00a0∑  x²", want: "Café\u00a0∑ x²"},
		{name: "empty", in: " \n\t\n ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rep := CleanText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rep, rep)

			again, rep2 := CleanText(got)
			assert.Equal(t, got, again, "cleaning is not idempotent")
			assert.Zero(t, rep2)
		})
	}
}

func TestClean_Warnings(t *testing.T) {
	doc := &types.Document{Content: "a\x00b\x01"}
	Clean(doc)
	assert.Equal(t, "ab", doc.Content)
	assert.Equal(t, []string{WarnNullBytes, WarnControlChars}, doc.IngestWarnings)

	empty := &types.Document{Content: "\x00 \n"}
	Clean(empty)
	assert.Empty(t, empty.Content)
	require.Len(t, empty.IngestWarnings, 2)
	assert.Equal(t, WarnEmptyAfterClean, empty.IngestWarnings[1])
}
