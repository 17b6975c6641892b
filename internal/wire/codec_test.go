package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeDecodeRoundTrip(t *testing.T) {
	frame := Compose(ChatMessage, "corr-1", ChatPayload{Text: "roll for initiative"})

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, ChatMessage, env.Type)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.NotZero(t, env.Timestamp)

	payload, err := DecodePayload[ChatPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "roll for initiative", payload.Text)
}

func TestComposeWithoutPayload(t *testing.T) {
	frame := Compose(Pong, "", nil)

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, Pong, env.Type)
	assert.Empty(t, env.Payload)
}

func TestDecodeEmptyFrame(t *testing.T) {
	_, err := Decode(nil)
	require.ErrorIs(t, err, ErrEmptyFrame)

	_, err = Decode([]byte{})
	require.ErrorIs(t, err, ErrEmptyFrame)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	require.Error(t, err)
}

func TestDecodePayloadEmptyGivesZeroValue(t *testing.T) {
	env, err := Decode(Compose(LeaveSession, "", nil))
	require.NoError(t, err)

	payload, err := DecodePayload[JoinSessionPayload](env)
	require.NoError(t, err)
	assert.Zero(t, payload)
}

func TestCBORCodecRoundTrip(t *testing.T) {
	codec := NewCBORCodec()

	in := DiceResultPayload{
		SessionID: "s-1",
		UserID:    "u-1",
		Username:  "alice",
		Notation:  "2d6",
		Rolls:     []DiceRollResult{{Sides: 6, Results: []int{3, 5}, Total: 8}},
		Total:     8,
	}
	raw, err := codec.Marshal(in)
	require.NoError(t, err)

	var out DiceResultPayload
	require.NoError(t, codec.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}
