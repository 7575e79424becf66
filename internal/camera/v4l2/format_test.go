package v4l2

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNegotiated(t *testing.T) {
	req := Options{Path: "/dev/video0", Width: 1280, Height: 720, FPS: 30}
	errQuery := errors.New("inappropriate ioctl")

	tests := []struct {
		name          string
		width, height uint32
		sizeErr       error
		fps           uint32
		fpsErr        error
		want          Format
	}{
		{"driver agrees", 1280, 720, nil, 30, nil, Format{1280, 720, 30}},
		{"driver falls back", 640, 480, nil, 15, nil, Format{640, 480, 15}},
		{"size query fails", 0, 0, errQuery, 15, nil, Format{1280, 720, 15}},
		{"rate query fails", 800, 600, nil, 0, errQuery, Format{800, 600, 30}},
		{"zero reports ignored", 0, 0, nil, 0, nil, Format{1280, 720, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := negotiated(req, tt.width, tt.height, tt.sizeErr, tt.fps, tt.fpsErr)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("negotiated() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormat_Property(t *testing.T) {
	f := Format{Width: 640, Height: 480, FPS: 15}

	for name, want := range map[string]float64{"fps": 15, "width": 640, "height": 480} {
		got, ok := f.property(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := f.property("exposure")
	assert.False(t, ok)
}
