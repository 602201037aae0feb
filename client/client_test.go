package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoxley/unfezant/topic"
)

func TestNewValidation(t *testing.T) {
	log, _ := test.NewNullLogger()

	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{name: "missing broker", opts: Options{PublishTopic: "a"}},
		{name: "bad qos", opts: Options{Broker: "tcp://x:1883", PublishTopic: "a", QoS: 3}},
		{name: "wildcard publish topic", opts: Options{Broker: "tcp://x:1883", PublishTopic: "a/#"}, wantErr: topic.ErrInvalidName},
		{name: "bad filter", opts: Options{Broker: "tcp://x:1883", PublishTopic: "a", Subscribe: []string{"a/#/b"}}, wantErr: topic.ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts, log)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	c, err := New(Options{
		Broker:       "tcp://127.0.0.1:1883",
		PublishTopic: "unfezant/console",
		Subscribe:    []string{"#", "#"},
		EventBuffer:  2,
	}, nil)
	require.NoError(t, err)

	assert.Regexp(t, `^unfezant-[0-9a-f]{8}$`, c.ID())
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, []string{"#"}, c.Subscriptions())
	assert.Equal(t, defaultKeepAlive, c.opts.KeepAlive)
	assert.Equal(t, defaultConnectTimeout, c.opts.ConnectTimeout)
	assert.Equal(t, defaultPublishTimeout, c.opts.PublishTimeout)
	assert.Equal(t, minEventBuffer, c.opts.EventBuffer)

	// Disconnect before Connect only closes the state machine.
	c.Disconnect()
	assert.Equal(t, Closed, c.State())
	_, _, err = c.Connect(testContext(t))
	assert.Error(t, err, "no transition from closed back to connecting")
}

func TestEventString(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{
			event: Event{Direction: Incoming, Packet: Publish, Topic: "a/b", Payload: []byte(`{"a":1}`)},
			want:  `Incoming(Publish(Topic = "a/b", Qos = 0, Retain = false, Pkid = 0, Payload Size = 7))`,
		},
		{
			event: Event{Direction: Outgoing, Packet: Publish, Topic: "c", QoS: 1, Retain: true, PacketID: 4, Payload: []byte("hello")},
			want:  `Outgoing(Publish(Topic = "c", Qos = 1, Retain = true, Pkid = 4, Payload Size = 5))`,
		},
		{
			event: Event{Direction: Incoming, Packet: ConnAck, Detail: "Code = Success"},
			want:  `Incoming(ConnAck(Code = Success))`,
		},
		{
			event: Event{Direction: Incoming, Packet: SubAck, PacketID: 1, Detail: "#:0"},
			want:  `Incoming(SubAck(Pkid = 1, Filters = #:0))`,
		},
		{
			event: Event{Direction: Incoming, Packet: PubAck, PacketID: 9},
			want:  `Incoming(PubAck(Pkid = 9))`,
		},
		{
			event: Event{Direction: Outgoing, Packet: Disconnect},
			want:  `Outgoing(Disconnect)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.String())
		})
	}
}

func TestIsPublish(t *testing.T) {
	assert.True(t, Event{Direction: Incoming, Packet: Publish}.IsPublish())
	assert.False(t, Event{Direction: Outgoing, Packet: Publish}.IsPublish())
	assert.False(t, Event{Direction: Incoming, Packet: ConnAck}.IsPublish())
}

func TestStream(t *testing.T) {
	t.Run("delivers in order then closes", func(t *testing.T) {
		s := newStream(4)
		require.True(t, s.event(Event{Packet: ConnAck}))
		require.True(t, s.fail(ErrConnectionLost))
		require.True(t, s.event(Event{Packet: Publish}))
		s.end()

		ev, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, ConnAck, ev.Packet)

		_, err = s.Next()
		assert.ErrorIs(t, err, ErrConnectionLost)

		ev, err = s.Next()
		require.NoError(t, err)
		assert.Equal(t, Publish, ev.Packet)

		_, err = s.Next()
		assert.ErrorIs(t, err, ErrClosed)
		_, err = s.Next()
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("push after end is refused", func(t *testing.T) {
		s := newStream(1)
		s.end()
		s.end()
		assert.False(t, s.event(Event{}))
	})

	t.Run("push blocks until read", func(t *testing.T) {
		s := newStream(1)
		require.True(t, s.event(Event{PacketID: 1}))
		pushed := make(chan bool)
		go func() {
			pushed <- s.event(Event{PacketID: 2})
		}()
		select {
		case <-pushed:
			t.Fatal("push into a full stream returned early")
		case <-time.After(30 * time.Millisecond):
		}
		ev, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, uint16(1), ev.PacketID)
		assert.True(t, <-pushed)
	})

	t.Run("end releases a blocked push", func(t *testing.T) {
		s := newStream(1)
		require.True(t, s.event(Event{}))
		pushed := make(chan bool)
		go func() {
			pushed <- s.event(Event{})
		}()
		time.Sleep(10 * time.Millisecond)
		s.end()
		select {
		case ok := <-pushed:
			_ = ok
		case <-time.After(time.Second):
			t.Fatal("blocked push was not released by end")
		}
	})

	t.Run("offer drops instead of blocking", func(t *testing.T) {
		s := newStream(1)
		require.True(t, s.offer(Event{PacketID: 1}))
		offered := make(chan bool)
		go func() {
			offered <- s.offer(Event{PacketID: 2})
		}()
		select {
		case ok := <-offered:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("offer into a full stream blocked")
		}
		assert.Equal(t, uint64(1), s.dropped.Load())

		ev, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, uint16(1), ev.PacketID)
		assert.True(t, s.offer(Event{PacketID: 3}))

		s.end()
		assert.False(t, s.offer(Event{PacketID: 4}))
		assert.Equal(t, uint64(2), s.dropped.Load())
	})

	t.Run("next blocks until an item arrives", func(t *testing.T) {
		s := newStream(1)
		got := make(chan error)
		go func() {
			_, err := s.Next()
			got <- err
		}()
		time.Sleep(10 * time.Millisecond)
		s.fail(errors.New("boom"))
		assert.EqualError(t, <-got, "boom")
	})
}

func TestConnectCancelledClosesConnection(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	log, _ := test.NewNullLogger()
	c, err := New(Options{
		Broker:         "tcp://" + l.Addr().String(),
		PublishTopic:   "a",
		ConnectTimeout: 500 * time.Millisecond,
	}, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = c.Connect(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, c.State())

	// The half-open attempt must not outlive the failed Connect.
	select {
	case conn := <-accepted:
		defer conn.Close()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		buf := make([]byte, 256)
		for {
			if _, err := conn.Read(buf); err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					t.Fatal("connection left open after a cancelled connect")
				}
				return
			}
		}
	case <-time.After(5 * time.Second):
		// The dial was abandoned before it reached the listener.
	}
}

func TestStateTransitions(t *testing.T) {
	var b stateBox
	assert.Equal(t, Disconnected, b.load())
	assert.True(t, b.advance(Connecting))
	assert.False(t, b.advance(Connecting))
	assert.True(t, b.advance(Running))
	assert.False(t, b.advance(Connecting), "no backwards transition")
	assert.True(t, b.advance(Closed))
	assert.False(t, b.advance(Running))
	assert.Equal(t, Closed, b.load())

	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestSetLibraryLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	SetLibraryLogger(log)
	defer SetLibraryLogger(logrus.New())
	mqtt.ERROR.Println("library error")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "library error", hook.LastEntry().Message)
}

// testContext stands in for testing.T.Context, which needs Go 1.24.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
