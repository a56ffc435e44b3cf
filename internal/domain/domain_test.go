package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestination(t *testing.T) {
	assert.True(t, Destination{}.IsZero())
	assert.False(t, ToChannel("general").IsZero())
	assert.Equal(t, "alice", ToUser("alice").User)
}

func TestMessageRef_IsZero(t *testing.T) {
	assert.True(t, MessageRef{}.IsZero())
	assert.False(t, MessageRef{ChannelID: "C1", ID: "1.0"}.IsZero())
}

func TestHistoryFilter_Matches(t *testing.T) {
	rec := HistoryRecord{Channel: "general", User: "alice", Text: "hi"}

	tests := []struct {
		name   string
		filter HistoryFilter
		want   bool
	}{
		{"empty", HistoryFilter{}, true},
		{"channel match", HistoryFilter{Channel: mo.Some("general")}, true},
		{"channel mismatch", HistoryFilter{Channel: mo.Some("random")}, false},
		{"user match", HistoryFilter{User: mo.Some("alice")}, true},
		{"both, user mismatch", HistoryFilter{Channel: mo.Some("general"), User: mo.Some("bob")}, false},
		{"explicit none", HistoryFilter{User: mo.None[string]()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(rec))
		})
	}
}

func TestDispatchEvent_JSON(t *testing.T) {
	ev := DispatchEvent{
		Kind:      EventMessage,
		UserID:    "U1",
		ChannelID: "C1",
		Text:      "!help",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Raw:       struct{}{},
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "message", decoded["kind"])
	assert.NotContains(t, decoded, "Raw")
	assert.NotContains(t, decoded, "direct")
	assert.True(t, ev.IsMessage())
}
