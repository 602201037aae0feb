package msg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		message Message
		kind    Kind
		topic   string
		text    string
		isError bool
	}{
		{
			name:    "raw event",
			message: RawEvent("Incoming(PingResp)"),
			kind:    RawEventKind,
			text:    "Incoming(PingResp)",
		},
		{
			name:    "decoded payload",
			message: DecodedPayload("sensors/temp", "23.5"),
			kind:    DecodedPayloadKind,
			topic:   "sensors/temp",
			text:    "23.5",
		},
		{
			name:    "send failure",
			message: SendFailure("hello", errors.New("not connected")),
			kind:    SendFailureKind,
			text:    `send "hello" failed: not connected`,
			isError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.message.Kind)
			assert.Equal(t, tt.topic, tt.message.Topic)
			assert.Equal(t, tt.text, tt.message.Text)
			assert.Equal(t, tt.isError, tt.message.IsError())
			assert.False(t, tt.message.At.IsZero())
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "raw", RawEventKind.String())
	assert.Equal(t, "decoded", DecodedPayloadKind.String())
	assert.Equal(t, "send-failure", SendFailureKind.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
