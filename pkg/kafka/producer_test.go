package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/config"
)

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "python", Value: map[string]int{"returned": 3}},
		{Key: "go", Value: []string{"a"}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "python", string(msgs[0].Key))
	assert.JSONEq(t, `{"returned":3}`, string(msgs[0].Value))
	assert.JSONEq(t, `["a"]`, string(msgs[1].Value))

	_, err = encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}

func TestPingWithoutBrokers(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Topic: "events"})
	defer p.Close()
	assert.Error(t, p.Ping(context.Background()))
}

func TestDecodeJSON(t *testing.T) {
	msgs, err := encode([]Event{{Key: "go", Value: map[string]int{"returned": 7}}})
	require.NoError(t, err)

	got, err := DecodeJSON[map[string]int](msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, 7, got["returned"])

	_, err = DecodeJSON[map[string]int]([]byte("{not json"))
	assert.ErrorContains(t, err, "decoding kafka message")
}
