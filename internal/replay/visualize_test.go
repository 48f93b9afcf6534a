package replay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColor_MarshalUnmarshalRoundTrip(t *testing.T) {
	c := Color{R: 1, G: 0.5019608, B: 0, A: 1}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	require.Equal(t, `"ff8000ff"`, string(data))

	var got Color
	require.NoError(t, json.Unmarshal(data, &got))
	require.InDelta(t, c.R, got.R, 0.01)
	require.InDelta(t, c.G, got.G, 0.01)
	require.InDelta(t, c.B, got.B, 0.01)
	require.InDelta(t, c.A, got.A, 0.01)
}

func TestColor_UnmarshalRejectsWrongLength(t *testing.T) {
	var c Color
	err := json.Unmarshal([]byte(`"ffffff"`), &c)
	require.Error(t, err)
}

func TestEvent_CreateRoundTrip(t *testing.T) {
	ev := Event{
		Kind:     EventCreate,
		ID:       7,
		Position: Point{X: 1, Y: 2},
		ZIndex:   3,
		Geometry: &Geom{Kind: GeomCircle, Center: Point{X: 1, Y: 2}, Radius: 5, FillColor: Color{R: 1, A: 1}},
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, EventCreate, got.Kind)
	require.Equal(t, uint64(7), got.ID)
	require.NotNil(t, got.Geometry)
	require.Equal(t, GeomCircle, got.Geometry.Kind)
}

func TestTimedEvent_EndMillis(t *testing.T) {
	instant := TimedEvent{StartMillis: 100, Event: Event{Kind: EventLog}}
	require.Equal(t, uint64(100), instant.EndMillis())

	animated := TimedEvent{StartMillis: 100, Event: Event{Kind: EventTransform, DurationMillis: 250}}
	require.Equal(t, uint64(350), animated.EndMillis())
}

func TestReplay_Marshal(t *testing.T) {
	r := Replay{
		Events: []TimedEvent{
			{StartMillis: 0, Event: Event{Kind: EventCreate, ID: 1}},
			{StartMillis: 500, Event: Event{Kind: EventDestroy, ID: 1}},
		},
		DurationMillis: 500,
	}
	data, err := r.Marshal()
	require.NoError(t, err)

	var got Replay
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Events, 2)
	require.Equal(t, uint64(500), got.DurationMillis)
}
