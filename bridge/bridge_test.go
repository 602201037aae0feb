package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/decode"
	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/msg"
	"github.com/markoxley/unfezant/topic"
)

type fakeItem struct {
	event client.Event
	err   error
}

// fakeIterator replays items and reports ErrClosed once the channel is closed.
type fakeIterator struct {
	items chan fakeItem
	once  sync.Once
}

func newFakeIterator(items ...fakeItem) *fakeIterator {
	it := &fakeIterator{items: make(chan fakeItem, len(items)+16)}
	for _, i := range items {
		it.items <- i
	}
	return it
}

func (f *fakeIterator) Next() (client.Event, error) {
	i, ok := <-f.items
	if !ok {
		return client.Event{}, client.ErrClosed
	}
	return i.event, i.err
}

func (f *fakeIterator) close() {
	f.once.Do(func() { close(f.items) })
}

// fakeSender records every payload; fail makes a payload's send return err.
type fakeSender struct {
	mutex    sync.Mutex
	payloads []string
	fail     map[string]error
}

func (f *fakeSender) Send(payload []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.payloads = append(f.payloads, string(payload))
	return f.fail[string(payload)]
}

func (f *fakeSender) sent() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.payloads...)
}

type fakeConnector struct {
	sender     *fakeSender
	events     *fakeIterator
	err        error
	disconnect int
}

func (f *fakeConnector) Connect(context.Context) (client.Sender, client.Iterator, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.sender, f.events, nil
}

func (f *fakeConnector) Disconnect() {
	f.disconnect++
	f.events.close()
}

func publish(topicName string, payload []byte) fakeItem {
	return fakeItem{event: client.Event{Direction: client.Incoming, Packet: client.Publish, Topic: topicName, Payload: payload}}
}

func collect(h *hub.Hub[msg.Message]) []msg.Message {
	var out []msg.Message
	for {
		m, ok := h.Receive()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

func runIngress(t *testing.T, opts []IngressOption, items ...fakeItem) []msg.Message {
	t.Helper()
	log, _ := test.NewNullLogger()
	events := hub.New[msg.Message]("events", 64, hub.Block)
	it := newFakeIterator(items...)
	it.close()
	in := NewIngress(it, events.Producer(), append([]IngressOption{WithIngressLogger(log)}, opts...)...)
	in.Run()
	return collect(events)
}

func TestIngressJSONPayload(t *testing.T) {
	item := publish("sensors/a", []byte(`{"a":1}`))
	got := runIngress(t, nil, item)

	require.Len(t, got, 2)
	assert.Equal(t, msg.RawEventKind, got[0].Kind)
	assert.Equal(t, item.event.String(), got[0].Text)
	assert.Equal(t, msg.DecodedPayloadKind, got[1].Kind)
	assert.Equal(t, "sensors/a", got[1].Topic)
	assert.Equal(t, "{\n  \"a\": 1\n}", got[1].Text)
}

func TestIngressInvalidUTF8(t *testing.T) {
	got := runIngress(t, nil, publish("sensors/a", []byte{0xFF, 0xFE}))
	require.Len(t, got, 1)
	assert.Equal(t, msg.RawEventKind, got[0].Kind)
}

func TestIngressPlainText(t *testing.T) {
	got := runIngress(t, nil, publish("chat", []byte("hello there")))
	require.Len(t, got, 2)
	assert.Equal(t, msg.RawEventKind, got[0].Kind)
	assert.Equal(t, msg.DecodedPayloadKind, got[1].Kind)
	assert.Equal(t, "hello there", got[1].Text)
}

func TestIngressNonPublishEvents(t *testing.T) {
	got := runIngress(t, nil,
		fakeItem{event: client.Event{Direction: client.Incoming, Packet: client.ConnAck, Detail: "Code = Success"}},
		fakeItem{event: client.Event{Direction: client.Outgoing, Packet: client.Publish, Topic: "x", Payload: []byte("hi")}},
	)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.Equal(t, msg.RawEventKind, m.Kind)
	}
	assert.Equal(t, "Incoming(ConnAck(Code = Success))", got[0].Text)
}

func TestIngressDropsConnectionErrors(t *testing.T) {
	got := runIngress(t, nil,
		fakeItem{err: fmt.Errorf("%w: EOF", client.ErrConnectionLost)},
		fakeItem{err: errors.New("read tcp: reset")},
		publish("a", []byte("1")),
	)
	require.Len(t, got, 2)
	assert.Equal(t, msg.RawEventKind, got[0].Kind)
	assert.Equal(t, "1", got[1].Text)
}

func TestIngressDecodeStrategy(t *testing.T) {
	got := runIngress(t, []IngressOption{WithDecoder(decode.Text)}, publish("a", []byte(`{"a":1}`)))
	require.Len(t, got, 2)
	assert.Equal(t, `{"a":1}`, got[1].Text)

	got = runIngress(t, []IngressOption{WithDecoder(decode.None)}, publish("a", []byte(`{"a":1}`)))
	require.Len(t, got, 1)
}

func TestIngressDecodeTopics(t *testing.T) {
	filters, err := topic.New("sensors/#")
	require.NoError(t, err)
	got := runIngress(t, []IngressOption{WithDecodeTopics(filters)},
		publish("sensors/a", []byte("1")),
		publish("chat", []byte("2")),
	)
	require.Len(t, got, 3)
	assert.Equal(t, msg.RawEventKind, got[0].Kind)
	assert.Equal(t, msg.DecodedPayloadKind, got[1].Kind)
	assert.Equal(t, msg.RawEventKind, got[2].Kind)
}

func TestIngressPreservesOrder(t *testing.T) {
	const n = 100
	items := make([]fakeItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, publish("seq", []byte(fmt.Sprintf("%d", i))))
	}
	got := runIngress(t, nil, items...)
	require.Len(t, got, 2*n)
	for i := 0; i < n; i++ {
		assert.Equal(t, msg.RawEventKind, got[2*i].Kind)
		assert.Equal(t, fmt.Sprintf("%d", i), got[2*i+1].Text)
	}
}

func TestEgressSendsOnce(t *testing.T) {
	log, _ := test.NewNullLogger()
	events := hub.New[msg.Message]("events", 10, hub.Block)
	commands := hub.New[msg.Command]("commands", 10, hub.DropNewest)
	input := commands.Producer()
	sender := &fakeSender{}

	e := NewEgress(sender, commands, events.Producer(), log)
	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	require.Equal(t, hub.Enqueued, input.Send(msg.Command{Text: "hello"}))
	input.Close()
	<-done

	assert.Equal(t, []string{"hello"}, sender.sent())
	assert.Empty(t, collect(events), "sending must not produce hub messages")
}

func TestEgressReportsSendFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	events := hub.New[msg.Message]("events", 10, hub.Block)
	commands := hub.New[msg.Command]("commands", 10, hub.DropNewest)
	input := commands.Producer()
	sender := &fakeSender{fail: map[string]error{"bad": client.ErrNotConnected}}

	e := NewEgress(sender, commands, events.Producer(), log)
	go e.Run()

	input.Send(msg.Command{Text: "bad"})
	input.Send(msg.Command{Text: "good"})
	input.Close()

	got := collect(events)
	require.Len(t, got, 1)
	assert.Equal(t, msg.SendFailureKind, got[0].Kind)
	assert.Contains(t, got[0].Text, "not connected")
	assert.Equal(t, []string{"bad", "good"}, sender.sent(), "egress keeps running after a failure")
	assert.NotEmpty(t, hook.AllEntries())
}

func TestPipeline(t *testing.T) {
	log, _ := test.NewNullLogger()

	t.Run("end to end", func(t *testing.T) {
		conn := &fakeConnector{
			sender: &fakeSender{},
			events: newFakeIterator(publish("a", []byte(`{"a":1}`)), publish("b", []byte{0xFF, 0xFE})),
		}
		p, err := Start(testContext(t), conn, Config{Capacity: 10, Log: log})
		require.NoError(t, err)
		assert.Equal(t, hub.Block, p.Events.Policy())
		assert.Equal(t, hub.DropNewest, p.Commands.Policy())

		assert.Equal(t, hub.Enqueued, p.Submit("hello"))

		var got []msg.Message
		for len(got) < 3 {
			m, ok := p.Events.Receive()
			require.True(t, ok)
			got = append(got, m)
		}
		assert.Equal(t, msg.RawEventKind, got[0].Kind)
		assert.Equal(t, msg.DecodedPayloadKind, got[1].Kind)
		assert.Equal(t, msg.RawEventKind, got[2].Kind)

		p.Stop()
		assert.Empty(t, collect(p.Events), "nothing else is produced")
		p.Wait()
		assert.Equal(t, []string{"hello"}, conn.sender.sent())
		assert.Equal(t, 1, conn.disconnect)
		assert.Equal(t, hub.Closed, p.Submit("late"))
	})

	t.Run("connect failure", func(t *testing.T) {
		conn := &fakeConnector{err: errors.New("refused"), events: newFakeIterator()}
		_, err := Start(testContext(t), conn, Config{Log: log})
		assert.ErrorContains(t, err, "refused")
	})

	t.Run("shutdown discards undelivered events", func(t *testing.T) {
		items := make([]fakeItem, 0, 50)
		for i := 0; i < 50; i++ {
			items = append(items, publish("x", []byte("y")))
		}
		conn := &fakeConnector{sender: &fakeSender{}, events: newFakeIterator(items...)}
		p, err := Start(testContext(t), conn, Config{Capacity: 2, Log: log})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(testContext(t), 5*time.Second)
		defer cancel()
		require.NoError(t, p.Shutdown(ctx))
		assert.True(t, p.Events.IsClosed())
	})

	t.Run("stats", func(t *testing.T) {
		conn := &fakeConnector{sender: &fakeSender{}, events: newFakeIterator()}
		p, err := Start(testContext(t), conn, Config{Capacity: 3, CommandCapacity: 4, Overflow: hub.DropOldest, Log: log})
		require.NoError(t, err)
		s := p.Stats()
		assert.Equal(t, 3, s.EventsCapacity)
		assert.Equal(t, 4, s.CommandCapacity)
		assert.Equal(t, hub.DropOldest, s.EventsPolicy)
		assert.Equal(t, hub.DropNewest, s.CommandsPolicy)
		assert.Equal(t, "events 0/3 dropped 0 (dropold) | commands 0/4 dropped 0 (drop)", s.String())
		p.Stop()
		p.Wait()
	})

	t.Run("finish sends queued commands first", func(t *testing.T) {
		conn := &fakeConnector{sender: &fakeSender{}, events: newFakeIterator()}
		p, err := Start(testContext(t), conn, Config{CommandOverflow: hub.Block, Log: log})
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			require.Equal(t, hub.Enqueued, p.Submit(fmt.Sprintf("m%d", i)))
		}
		go collect(p.Events)

		ctx, cancel := context.WithTimeout(testContext(t), 5*time.Second)
		defer cancel()
		require.NoError(t, p.Finish(ctx))
		p.Wait()
		assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, conn.sender.sent())
		assert.Equal(t, 1, conn.disconnect)
	})

	t.Run("lost connection is observable", func(t *testing.T) {
		conn := &fakeConnector{sender: &fakeSender{}, events: newFakeIterator()}
		p, err := Start(testContext(t), conn, Config{Log: log})
		require.NoError(t, err)
		conn.events.close()

		select {
		case <-p.Disconnected():
		case <-time.After(5 * time.Second):
			t.Fatal("ingress did not finish")
		}
		assert.False(t, p.Events.IsClosed(), "egress still holds its handle")
		p.Stop()
		assert.Empty(t, collect(p.Events))
		p.Wait()
	})
}

// testContext stands in for testing.T.Context, which needs Go 1.24.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
