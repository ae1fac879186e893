package ws_test

import (
	"encoding/json"
	"testing"

	"github.com/MikoBN1/AWAST-Diploma/ws"
	"github.com/MikoBN1/AWAST-Diploma/zap"

	"github.com/stretchr/testify/require"
)

// 事件 JSON 是对前端的线上契约，字段名和空值形态都不能变

func TestProgressEventJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ws.Progress(0, nil, 0))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"progress","progress":0,"new_alerts":[],"total_alerts":0}`, string(data))
}

func TestDoneEventJSON(t *testing.T) {
	t.Parallel()

	a := zap.Alert{ID: "1", Name: "CSP Header Not Set", Risk: "Medium", URL: "https://ex.test/"}
	data, err := json.Marshal(ws.Done(1, 2, []zap.Alert{a}))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "done", got["type"])
	require.EqualValues(t, 100, got["progress"])
	require.EqualValues(t, 1, got["alerts_count"])
	require.EqualValues(t, 2, got["total_alerts"])
	require.Len(t, got["alerts"], 1)
}

func TestErrorEventJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ws.Errorf("Scan timeout"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","message":"Scan timeout"}`, string(data))
}
