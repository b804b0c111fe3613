package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
)

func TestEmit_MirrorsRecordAsJSON(t *testing.T) {
	p := mocks.NewAsyncProducer(t, nil)
	p.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var rec decode.Record
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		assert.Equal(t, "k1", rec.Key)
		assert.Equal(t, int64(7), rec.Offset)
		return nil
	})
	p.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	d := &driver{}
	d.start(Config{Topic: "orders-mirror"}, p)

	require.NoError(t, d.Emit("message_received", decode.Record{Key: "k1", Value: map[string]any{"id": 1.0}, Offset: 7}))
	require.NoError(t, d.Emit("message_received", decode.Record{Value: "x"}), "delivery errors are swallowed")
	_ = d.Close() // may report the failed delivery if drain has not seen it yet
	assert.NoError(t, d.Close())
}

func TestConfigure_Validates(t *testing.T) {
	d := &driver{}
	assert.Error(t, d.Configure("nope"))
	assert.Error(t, d.Configure(Config{Topic: "t"}))
	assert.Error(t, d.Emit("message_received", decode.Record{}))
}
