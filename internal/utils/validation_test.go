package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/progenxxx/hris-sub006/internal/utils"
)

func TestValidateRecordID(t *testing.T) {
	tests := []struct {
		id   string
		want error
	}{
		{"3f2a-b_9", nil},
		{"", utils.ErrEmptyID},
		{"1; DROP TABLE records", utils.ErrInvalidIDFormat},
		{strings.Repeat("a", 65), utils.ErrIDTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := utils.ValidateRecordID(tt.id)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, err)
		})
	}
}

func TestValidateKindName(t *testing.T) {
	assert.NoError(t, utils.ValidateKindName("travel_orders"))
	assert.Equal(t, utils.ErrEmptyKind, utils.ValidateKindName(" "))
	assert.Equal(t, utils.ErrInvalidKind, utils.ValidateKindName("../etc"))
}

func TestStripControl(t *testing.T) {
	assert.Equal(t, "line one\nline\ttwo", utils.StripControl("line one\nline\ttwo\x00\x07"))
}
