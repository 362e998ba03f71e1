package serialmux

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{`{"position":"1;2","image":"abc"}`, EventTypeTelemetry},
		{`  {"speed":`, EventTypeTelemetry},
		{`{}`, EventTypeManual},
		{"{ \n }", EventTypeManual},
		{"bridge connected", EventTypeUnknown},
		{"", EventTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyPayload(tt.payload); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	out := summarize(`{"speed":"1.5","image":"QUJDRA=="}`)
	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "1.5", m["speed"])
	assert.Equal(t, "<10 bytes>", m["image"])

	assert.Equal(t, "not json", summarize("not json"))
	assert.Equal(t, `{"speed":"1"}`, summarize(`{"speed":"1"}`))
}
