package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// --- mock types ---

// mockJetStream implements a minimal JetStreamContext for testing
type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream"}, nil
}

// Implement remaining JetStreamContext interface methods as no-ops for testing
func (m *mockJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return nil, nil
}
func (m *mockJetStream) PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error) {
	return nil, nil
}
func (m *mockJetStream) PublishMsgAsync(msg *nats.Msg, opts ...nats.PubOpt) (nats.PubAckFuture, error) {
	return nil, nil
}
func (m *mockJetStream) PublishAsyncPending() int { return 0 }
func (m *mockJetStream) PublishAsyncComplete() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (m *mockJetStream) CleanupPublisher() {}
func (m *mockJetStream) Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}
func (m *mockJetStream) SubscribeSync(subj string, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}
func (m *mockJetStream) ChanSubscribe(subj string, ch chan *nats.Msg, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}
func (m *mockJetStream) ChanQueueSubscribe(subj, queue string, ch chan *nats.Msg, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}
func (m *mockJetStream) QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}
func (m *mockJetStream) QueueSubscribeSync(subj, queue string, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}
func (m *mockJetStream) PullSubscribe(subj, durable string, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}
func (m *mockJetStream) AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	return nil, nil
}
func (m *mockJetStream) UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	return nil, nil
}
func (m *mockJetStream) DeleteStream(name string, opts ...nats.JSOpt) error { return nil }
func (m *mockJetStream) StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	return nil, nil
}
func (m *mockJetStream) Streams(opts ...nats.JSOpt) <-chan *nats.StreamInfo {
	ch := make(chan *nats.StreamInfo)
	close(ch)
	return ch
}
func (m *mockJetStream) PurgeStream(name string, opts ...nats.JSOpt) error { return nil }
func (m *mockJetStream) StreamsInfo(opts ...nats.JSOpt) <-chan *nats.StreamInfo {
	ch := make(chan *nats.StreamInfo)
	close(ch)
	return ch
}
func (m *mockJetStream) StreamNames(opts ...nats.JSOpt) <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}
func (m *mockJetStream) GetMsg(name string, seq uint64, opts ...nats.JSOpt) (*nats.RawStreamMsg, error) {
	return nil, nil
}
func (m *mockJetStream) GetLastMsg(name, subj string, opts ...nats.JSOpt) (*nats.RawStreamMsg, error) {
	return nil, nil
}
func (m *mockJetStream) DeleteMsg(name string, seq uint64, opts ...nats.JSOpt) error { return nil }
func (m *mockJetStream) SecureDeleteMsg(name string, seq uint64, opts ...nats.JSOpt) error {
	return nil
}
func (m *mockJetStream) AddConsumer(stream string, cfg *nats.ConsumerConfig, opts ...nats.JSOpt) (*nats.ConsumerInfo, error) {
	return nil, nil
}
func (m *mockJetStream) UpdateConsumer(stream string, cfg *nats.ConsumerConfig, opts ...nats.JSOpt) (*nats.ConsumerInfo, error) {
	return nil, nil
}
func (m *mockJetStream) DeleteConsumer(stream, consumer string, opts ...nats.JSOpt) error { return nil }
func (m *mockJetStream) ConsumerInfo(stream, name string, opts ...nats.JSOpt) (*nats.ConsumerInfo, error) {
	return nil, nil
}
func (m *mockJetStream) Consumers(stream string, opts ...nats.JSOpt) <-chan *nats.ConsumerInfo {
	ch := make(chan *nats.ConsumerInfo)
	close(ch)
	return ch
}
func (m *mockJetStream) ConsumersInfo(stream string, opts ...nats.JSOpt) <-chan *nats.ConsumerInfo {
	ch := make(chan *nats.ConsumerInfo)
	close(ch)
	return ch
}
func (m *mockJetStream) ConsumerNames(stream string, opts ...nats.JSOpt) <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}
func (m *mockJetStream) AccountInfo(opts ...nats.JSOpt) (*nats.AccountInfo, error) { return nil, nil }
func (m *mockJetStream) StreamNameBySubject(string, ...nats.JSOpt) (string, error) { return "", nil }
func (m *mockJetStream) KeyValue(bucket string) (nats.KeyValue, error)             { return nil, nil }
func (m *mockJetStream) CreateKeyValue(cfg *nats.KeyValueConfig) (nats.KeyValue, error) {
	return nil, nil
}
func (m *mockJetStream) DeleteKeyValue(bucket string) error { return nil }
func (m *mockJetStream) KeyValueStoreNames() <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}
func (m *mockJetStream) KeyValueStores() <-chan nats.KeyValueStatus {
	ch := make(chan nats.KeyValueStatus)
	close(ch)
	return ch
}
func (m *mockJetStream) ObjectStore(bucket string) (nats.ObjectStore, error) { return nil, nil }
func (m *mockJetStream) CreateObjectStore(cfg *nats.ObjectStoreConfig) (nats.ObjectStore, error) {
	return nil, nil
}
func (m *mockJetStream) DeleteObjectStore(bucket string) error { return nil }
func (m *mockJetStream) ObjectStoreNames(opts ...nats.ObjectOpt) <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}
func (m *mockJetStream) ObjectStores(opts ...nats.ObjectOpt) <-chan nats.ObjectStoreStatus {
	ch := make(chan nats.ObjectStoreStatus)
	close(ch)
	return ch
}

// --- helper ---

func newTestPublisher(fail bool) *Publisher {
	js := &mockJetStream{fail: fail}
	return &Publisher{
		logger:            zap.NewNop(),
		nc:                nil,
		js:                js,
		instrumentSubject: "md.comdirect.instrument.snapshot",
		quoteSubject:      "md.comdirect.quote.tick",
		source:            "comdirect-adapter",
	}
}

// --- tests ---

func TestPublishInstrument_EnvelopeShape(t *testing.T) {
	pub := newTestPublisher(false)
	inst := &model.Instrument{
		Name:       "Siemens",
		WKN:        "723610",
		ISIN:       "DE0007236101",
		AssetClass: model.ClassStock,
		FetchedAt:  time.Now().UTC(),
	}

	err := pub.PublishInstrument(context.Background(), inst)
	require.NoError(t, err)

	js := pub.js.(*mockJetStream)
	require.Len(t, js.published, 1)
	msg := js.published[0]
	assert.Equal(t, "md.comdirect.instrument.snapshot", msg.Subject)
	assert.Equal(t, EventInstrumentSnapshot, msg.Header.Get("event"))
	assert.Equal(t, "comdirect-adapter", msg.Header.Get("source"))
	assert.Equal(t, "application/json", msg.Header.Get("content_type"))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, EventInstrumentSnapshot, env.Event)
	assert.Equal(t, "comdirect-adapter", env.Source)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", env.EventID.String())
	assert.Equal(t, env.EventID.String(), msg.Header.Get("event_id"))
	assert.False(t, env.OccurredAt.IsZero())

	var got model.Instrument
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "723610", got.WKN)
}

func TestPublishQuote_RoutesToQuoteSubject(t *testing.T) {
	pub := newTestPublisher(false)
	q := &model.Quote{
		WKN:        "723610",
		Name:       "Siemens",
		AssetClass: model.ClassStock,
		IDNotation: "253929",
		Bid:        decimal.RequireFromString("167.02"),
		Ask:        decimal.RequireFromString("167.18"),
		QuotedAt:   time.Now().UTC(),
	}

	err := pub.PublishQuote(context.Background(), q)
	require.NoError(t, err)

	js := pub.js.(*mockJetStream)
	require.Len(t, js.published, 1)
	assert.Equal(t, "md.comdirect.quote.tick", js.published[0].Subject)
	assert.Equal(t, EventQuoteTick, js.published[0].Header.Get("event"))
}

func TestPublish_FailureSurfacesError(t *testing.T) {
	pub := newTestPublisher(true)

	err := pub.PublishInstrument(context.Background(), &model.Instrument{WKN: "723610"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock publish error")
}

func TestNilPublisher_DropsEverything(t *testing.T) {
	var pub *Publisher

	assert.NoError(t, pub.PublishInstrument(context.Background(), &model.Instrument{WKN: "723610"}))
	assert.NoError(t, pub.PublishQuote(context.Background(), &model.Quote{WKN: "723610"}))
	pub.Close()
}
