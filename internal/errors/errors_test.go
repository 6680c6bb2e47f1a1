package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedErrorMessage(t *testing.T) {
	err := Newf("device %q not found", "hw:1,0").
		Component("myaudio").
		Category(CategoryAudioDevice).
		Context("attempt", 3).
		Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "myaudio: ")
	assert.Contains(t, err.Error(), `device "hw:1,0" not found`)
	assert.Contains(t, err.Error(), "attempt=3")
}

func TestCategoryRouting(t *testing.T) {
	tests := []struct {
		name string
		err  error
		cat  Category
		want bool
	}{
		{"matching category", New(io.EOF).Category(CategoryModelInit).Build(), CategoryModelInit, true},
		{"different category", New(io.EOF).Category(CategoryPublish).Build(), CategoryModelInit, false},
		{"plain error", io.EOF, CategoryGeneric, true},
		{"wrapped enhanced error", fmt.Errorf("outer: %w", New(io.EOF).Category(CategoryCaptureWrite).Build()), CategoryCaptureWrite, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCategory(tt.err, tt.cat))
		})
	}
}

func TestUnwrapChain(t *testing.T) {
	err := New(io.ErrUnexpectedEOF).Component("detector").Build()
	assert.True(t, Is(err, io.ErrUnexpectedEOF))

	var ee *EnhancedError
	require.True(t, As(err, &ee))
	assert.Equal(t, "detector", ee.Component)
}
