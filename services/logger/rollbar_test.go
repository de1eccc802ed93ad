package logsvc

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/user"
)

func newTestLogger(debug bool) (*RollbarLogger, *bytes.Buffer) {
	var out bytes.Buffer
	logger := NewRollbarLogger(&out, &core.Config{AppName: "Masomo", Env: "TEST", Debug: debug})
	logger.Enable(false)
	return logger, &out
}

func TestRollbarLogger_Write(t *testing.T) {
	logger, out := newTestLogger(false)

	usr := user.User{ID: "u1", Username: "jdoe"}
	logger.Error("approving payment", errors.New("boom"), map[string]interface{}{"payment_id": "p1"}, usr)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "approving payment", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "p1", line["payment_id"])
	assert.Equal(t, "u1", line["user_id"])
	assert.Equal(t, "TEST", line["env"])
}

func TestRollbarLogger_Level(t *testing.T) {
	tests := []struct {
		name    string
		debug   bool
		wantOut bool
	}{
		{name: "debug mode", debug: true, wantOut: true},
		{name: "prod mode", debug: false, wantOut: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, out := newTestLogger(tc.debug)
			logger.Debug("recomputed progress")
			assert.Equal(t, tc.wantOut, out.Len() > 0)
		})
	}
}

func TestRollbarLogger_Named(t *testing.T) {
	logger, out := newTestLogger(false)
	logger.Named("db").Info("migrated")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "db", line["component"])
	assert.Equal(t, "Masomo", line["app"])
}
