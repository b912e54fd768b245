package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeline_SortsAndDropsMissingTimestamps(t *testing.T) {
	wps := []Waypoint{
		wp(3, clock(10, 0), 3, 3),
		wp(1, clock(8, 0), 1, 1),
		wp(9, nil, 9, 9),
		wp(2, clock(9, 0), 2, 2),
	}
	tl := NewTimeline(wps)
	require.Len(t, tl, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{tl[0].Sequence, tl[1].Sequence, tl[2].Sequence})
	// input is untouched
	assert.Equal(t, 3, wps[0].Sequence)
}

func TestNewTimeline_StableForTies(t *testing.T) {
	tl := NewTimeline([]Waypoint{
		wp(5, clock(8, 0), 0, 0),
		wp(4, clock(8, 0), 0, 0),
		wp(3, clock(7, 0), 0, 0),
	})
	assert.Equal(t, []int{3, 5, 4}, []int{tl[0].Sequence, tl[1].Sequence, tl[2].Sequence})
}

func TestNewTimeline_OrdersAcrossDays(t *testing.T) {
	tue := wp(2, clock(7, 0), 0, 0)
	tue.DayOfWeek = 1
	mon := wp(1, clock(22, 0), 0, 0)
	tl := NewTimeline([]Waypoint{tue, mon})
	assert.Equal(t, 1, tl.First().Sequence)
	assert.Equal(t, 2, tl.Last().Sequence)
}

func TestLocate(t *testing.T) {
	wps := []Waypoint{
		wp(1, clock(8, 0), 0, 0),
		wp(2, clock(9, 0), 0, 1),
		wp(3, clock(10, 0), 0, 2),
	}
	tests := []struct {
		name     string
		h, m     int
		ok       bool
		index    int
		progress float64
	}{
		{"start", 8, 0, true, 0, 0},
		{"quarter", 8, 15, true, 0, 0.25},
		{"boundary picks first pair", 9, 0, true, 0, 1},
		{"second pair", 9, 30, true, 1, 0.5},
		{"end", 10, 0, true, 1, 1},
		{"before", 7, 59, false, 0, 0},
		{"after", 10, 1, false, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seg, ok := Locate(wps, anchored(tc.h, tc.m))
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.index, seg.Index)
			assert.InDelta(t, tc.progress, seg.Progress, 1e-9)
		})
	}
}

func TestLocate_DuplicateTimestampsGiveZeroProgress(t *testing.T) {
	seg, ok := Locate([]Waypoint{wp(1, clock(8, 0), 0, 0), wp(2, clock(8, 0), 1, 1)}, anchored(8, 0))
	require.True(t, ok)
	assert.Equal(t, 0.0, seg.Progress)
}

func TestLocate_Degenerate(t *testing.T) {
	_, ok := Locate(nil, anchored(8, 0))
	assert.False(t, ok)
	_, ok = Locate([]Waypoint{wp(1, nil, 0, 0), wp(2, nil, 1, 1)}, anchored(8, 0))
	assert.False(t, ok)
	_, ok = Locate([]Waypoint{wp(1, clock(8, 0), 0, 0)}, anchored(8, 0))
	assert.False(t, ok)
}
