package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	testCases := []struct {
		desc    string
		payload string
		want    Command
	}{
		{"pause", `{"name":"pause"}`, PauseCommand{}},
		{"pause with reason", `{"name":"PAUSE","args":["maintenance"]}`, PauseCommand{Reason: "maintenance"}},
		{"resume", `{"name":"resume"}`, ResumeCommand{}},
		{"stop kwargs", `{"name":"stop","kwargs":{"reason":"eod"}}`, StopCommand{Reason: "eod"}},
		{"cancel", `{"name":"cancel_order","kwargs":{"order_id":"abc"}}`, CancelOrderCommand{OrderID: "abc"}},
		{"reconcile", `{"name":" reconcile "}`, ReconcileCommand{}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cmd, err := DecodeCommand([]byte(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, tc.want, cmd)
		})
	}
}

func TestDecodeCommandErrors(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"name":"liquidate_everything"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = DecodeCommand([]byte(`{"name":"cancel_order"}`))
	assert.Error(t, err)

	_, err = DecodeCommand([]byte(`not json`))
	assert.Error(t, err)
}
