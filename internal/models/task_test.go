package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestTransformSpec_ShouldResize(t *testing.T) {
	tests := []struct {
		name string
		spec TransformSpec
		want bool
	}{
		{"both dimensions", TransformSpec{ResizeWidth: intPtr(100), ResizeHeight: intPtr(50)}, true},
		{"width only", TransformSpec{ResizeWidth: intPtr(100)}, false},
		{"height only", TransformSpec{ResizeHeight: intPtr(50)}, false},
		{"neither", TransformSpec{}, false},
		{"zero width", TransformSpec{ResizeWidth: intPtr(0), ResizeHeight: intPtr(50)}, false},
		{"negative height", TransformSpec{ResizeWidth: intPtr(100), ResizeHeight: intPtr(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.ShouldResize())
		})
	}
}

func TestTask_Terminal(t *testing.T) {
	assert.False(t, Task{Status: StatusPending}.Terminal())
	assert.True(t, Task{Status: StatusSuccess}.Terminal())
	assert.True(t, Task{Status: StatusFailed}.Terminal())
}
