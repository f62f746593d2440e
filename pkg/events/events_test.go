package events

import (
	"testing"

	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/canopy-network/canopyx-points/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_FlatFields(t *testing.T) {
	msg := redis.Message{ID: "1-0", Values: map[string]interface{}{
		"kind":      "holding",
		"owner":     "abc123",
		"asset":     "7",
		"timestamp": "1000",
		"delta":     "-250",
		"height":    "42",
		"index":     "3",
	}}

	ev, subject, err := Decode(msg)
	require.NoError(t, err)

	assert.Equal(t, Subject{Kind: KindHolding, Asset: "7", Owner: "abc123"}, subject)
	assert.Equal(t, "holding:7:abc123", ev.AccountID)
	assert.Equal(t, int64(1000), ev.Timestamp)
	assert.Equal(t, int64(-250), ev.Delta)
	assert.Equal(t, ledger.OrderingKey{Height: 42, Index: 3}, ev.OrderingKey)
}

func TestDecode_DataField(t *testing.T) {
	msg := redis.Message{ID: "2-0", Values: map[string]interface{}{
		"data": `{"kind":"staking","owner":"bob","asset":1,"timestamp":5000,"delta":"9223372036854775807","height":10}`,
	}}

	ev, subject, err := Decode(msg)
	require.NoError(t, err)

	assert.Equal(t, KindStaking, subject.Kind)
	assert.Equal(t, "staking:1:bob", ev.AccountID)
	assert.Equal(t, int64(5000), ev.Timestamp)
	assert.Equal(t, int64(9223372036854775807), ev.Delta)
	assert.Equal(t, uint64(10), ev.OrderingKey.Height)
	assert.Equal(t, uint32(0), ev.OrderingKey.Index)
}

func TestDecode_Malformed(t *testing.T) {
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"kind": "holding", "owner": "o", "asset": "a", "timestamp": "1", "delta": "1",
		}
	}
	tests := []struct {
		name string
		edit func(map[string]interface{})
	}{
		{"unknown kind", func(v map[string]interface{}) { v["kind"] = "lending" }},
		{"missing owner", func(v map[string]interface{}) { delete(v, "owner") }},
		{"colon in asset", func(v map[string]interface{}) { v["asset"] = "a:b" }},
		{"missing timestamp", func(v map[string]interface{}) { delete(v, "timestamp") }},
		{"negative timestamp", func(v map[string]interface{}) { v["timestamp"] = "-5" }},
		{"delta not a number", func(v map[string]interface{}) { v["delta"] = "ten" }},
		{"delta overflows", func(v map[string]interface{}) { v["delta"] = "9223372036854775808" }},
		{"bad height", func(v map[string]interface{}) { v["height"] = "-1" }},
		{"index too large", func(v map[string]interface{}) { v["index"] = "4294967296" }},
		{"bad json", func(v map[string]interface{}) { v["data"] = "{" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := base()
			tt.edit(values)
			_, _, err := Decode(redis.Message{ID: "9-0", Values: values})
			require.ErrorIs(t, err, ErrMalformedEvent)
			assert.Contains(t, err.Error(), "9-0")
		})
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	subject := Subject{Kind: KindStaking, Asset: "3", Owner: "carol"}
	ev := ledger.BalanceEvent{
		AccountID:   subject.AccountID(),
		Timestamp:   123,
		Delta:       -9,
		OrderingKey: ledger.OrderingKey{Height: 8, Index: 1},
	}

	got, gotSubject, err := Decode(redis.Message{ID: "1-1", Values: Fields(subject, ev)})
	require.NoError(t, err)
	assert.Equal(t, ev, got)
	assert.Equal(t, subject, gotSubject)
}

func TestParseAccountID(t *testing.T) {
	s, err := ParseAccountID("holding:5:dave")
	require.NoError(t, err)
	assert.Equal(t, Subject{Kind: KindHolding, Asset: "5", Owner: "dave"}, s)

	for _, id := range []string{"", "holding:5", "vault:5:dave", "holding::dave", "holding:5:dave:x"} {
		_, err := ParseAccountID(id)
		assert.ErrorIs(t, err, ErrMalformedEvent, id)
	}
}
