package collision

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/deltapack/errs"
)

func TestNewTracker(t *testing.T) {
	tracker := NewTracker()

	require.NotNil(t, tracker)
	require.Zero(t, tracker.Collisions())
	require.False(t, tracker.HasCollision())
}

func TestTracker_Track(t *testing.T) {
	tests := []struct {
		name           string
		sig            string
		fp             uint64
		collided       bool
		wantErr        error
		wantCollisions int
	}{
		{"first", "pos:Vec3", 0x1234, false, nil, 0},
		{"second", "hp:Uint8", 0x5678, false, nil, 0},
		{"collision", "name:String", 0x1234, true, nil, 1},
		{"duplicate", "pos:Vec3", 0x1234, false, errs.ErrDuplicateLayout, 1},
		{"empty", "", 0x9999, false, errs.ErrInvalidLayout, 1},
		{"second collision", "yaw:Float", 0x5678, true, nil, 2},
	}

	tracker := NewTracker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collided, err := tracker.Track(tt.sig, tt.fp)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.collided, collided)
			require.Equal(t, tt.wantCollisions, tracker.Collisions())
		})
	}

	require.True(t, tracker.HasCollision())
}
