package console_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/console"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

func TestConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		c := console.NewConfirmer(strings.NewReader(tt.input), &out, false)
		ok, err := c.Confirm(context.Background(), "Delete leave 1?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "input %q", tt.input)
		assert.Equal(t, "Delete leave 1? [y/N]: ", out.String())
	}
}

func TestConfirmerAssumeYes(t *testing.T) {
	var out bytes.Buffer
	ok, err := console.NewConfirmer(strings.NewReader(""), &out, true).Confirm(context.Background(), "Delete?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, out.String())
}

func TestNotifier(t *testing.T) {
	var out bytes.Buffer
	n := console.NewNotifier(&out, nil)

	n.Notify(workflow.Notification{Success: true, Message: "leave 42 is now approved"})
	n.Notify(workflow.Notification{
		Error:   workflow.KindValidation,
		Message: "validation failed",
		Fields:  map[string][]string{"remarks": {"remarks are required"}},
	})

	assert.Equal(t, "✔ leave 42 is now approved\n✘ validation failed\n  remarks: remarks are required\n", out.String())
}
