package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoxley/unfezant/bridge"
	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/msg"
	"github.com/markoxley/unfezant/server"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startServer(t *testing.T) *server.Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	s, err := server.New(server.Options{Address: freeAddress(t)}, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("server exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}
	return s
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := server.New(server.Options{}, nil)
	assert.Error(t, err)
}

func TestRunFailsOnBusyAddress(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	log, _ := test.NewNullLogger()
	s, err := server.New(server.Options{Address: l.Addr().String()}, log)
	require.NoError(t, err)
	assert.Error(t, s.Run(testContext(t)))
}

func TestSessionsTrackClients(t *testing.T) {
	s := startServer(t)
	log, _ := test.NewNullLogger()

	c, err := client.New(client.Options{
		Broker:       "tcp://" + s.Addr(),
		ClientID:     "watcher",
		PublishTopic: "watcher/out",
	}, log)
	require.NoError(t, err)
	_, _, err = c.Connect(testContext(t))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := s.Sessions().Get("WATCHER")
		return ok && got.Connected
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.Sessions().Connected())

	c.Disconnect()
	require.Eventually(t, func() bool {
		got, ok := s.Sessions().Get("watcher")
		return ok && !got.Connected
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.Sessions().Connected())
}

// TestConsoleRoundTrip runs the whole pipeline against the embedded broker:
// a submitted command is published, and since the client subscribes to
// everything it comes back as an inbound publish.
func TestConsoleRoundTrip(t *testing.T) {
	s := startServer(t)
	log, _ := test.NewNullLogger()

	c, err := client.New(client.Options{
		Broker:       "tcp://" + s.Addr(),
		Subscribe:    []string{"#"},
		PublishTopic: "unfezant/console",
	}, log)
	require.NoError(t, err)

	p, err := bridge.Start(testContext(t), c, bridge.Config{Log: log})
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, p.Shutdown(ctx))
	}()

	first := receive(t, p)
	assert.Equal(t, "Incoming(ConnAck(Code = Success))", first.Text)

	require.Equal(t, "enqueued", p.Submit(`{"b":2,"a":1}`).String())

	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-p.Events.C():
			if m.Kind == msg.DecodedPayloadKind {
				assert.Equal(t, "unfezant/console", m.Topic)
				assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": 2\n}", m.Text)
				return
			}
		case <-deadline:
			t.Fatal("published command never came back")
		}
	}
}

func receive(t *testing.T, p *bridge.Pipeline) msg.Message {
	t.Helper()
	select {
	case m, ok := <-p.Events.C():
		require.True(t, ok)
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
		return msg.Message{}
	}
}

func TestSessionsSweep(t *testing.T) {
	r := server.NewSessions()
	r.Add(server.Session{ID: "b"})
	r.Add(server.Session{ID: "a"})
	r.Add(server.Session{ID: "gone"})
	require.True(t, r.Disconnect("gone"))
	assert.False(t, r.Disconnect("unknown"))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 2, r.Connected())

	assert.Equal(t, 0, r.Sweep(time.Hour))
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, r.Sweep(0))
	_, ok := r.Get("gone")
	assert.False(t, ok)
	assert.Len(t, r.List(), 2)
}

// TestSendDoesNotWaitForEventReader sends more messages than the event
// buffer holds while nobody reads the iterator.
func TestSendDoesNotWaitForEventReader(t *testing.T) {
	s := startServer(t)
	log, _ := test.NewNullLogger()

	c, err := client.New(client.Options{
		Broker:       "tcp://" + s.Addr(),
		PublishTopic: "unread/out",
		QoS:          1,
		EventBuffer:  8,
	}, log)
	require.NoError(t, err)
	sender, _, err := c.Connect(testContext(t))
	require.NoError(t, err)
	defer c.Disconnect()

	const sends = 20
	done := make(chan error, 1)
	go func() {
		for i := 0; i < sends; i++ {
			if err := sender.Send([]byte("x")); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Send blocked on the unread event iterator")
	}
	assert.Equal(t, client.Running, c.State())
	assert.Positive(t, c.DroppedEvents())
}

func TestSessionsIgnoreStaleDisconnect(t *testing.T) {
	r := server.NewSessions()
	r.Add(server.Session{ID: "dup", Remote: "127.0.0.1:1000"})
	r.Add(server.Session{ID: "dup", Remote: "127.0.0.1:2000"})

	assert.False(t, r.DisconnectRemote("dup", "127.0.0.1:1000"))
	got, ok := r.Get("dup")
	require.True(t, ok)
	assert.True(t, got.Connected)
	assert.Equal(t, "127.0.0.1:2000", got.Remote)

	assert.True(t, r.DisconnectRemote("DUP", "127.0.0.1:2000"))
	got, _ = r.Get("dup")
	assert.False(t, got.Connected)
	assert.False(t, r.DisconnectRemote("unknown", ""))
}

// TestSessionTakeoverKeepsNewClient connects a second client with the same
// ID. The broker drops the first one, and its late disconnect must leave
// the new session connected.
func TestSessionTakeoverKeepsNewClient(t *testing.T) {
	s := startServer(t)
	log, _ := test.NewNullLogger()
	connect := func() *client.Client {
		c, err := client.New(client.Options{
			Broker:       "tcp://" + s.Addr(),
			ClientID:     "dup",
			PublishTopic: "dup/out",
		}, log)
		require.NoError(t, err)
		_, _, err = c.Connect(testContext(t))
		require.NoError(t, err)
		t.Cleanup(c.Disconnect)
		return c
	}

	first := connect()
	require.Eventually(t, func() bool {
		got, ok := s.Sessions().Get("dup")
		return ok && got.Connected
	}, 5*time.Second, 10*time.Millisecond)
	old, _ := s.Sessions().Get("dup")

	connect()
	require.Eventually(t, func() bool {
		return first.State() == client.Closed
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		got, _ := s.Sessions().Get("dup")
		return got.Remote != old.Remote
	}, 5*time.Second, 10*time.Millisecond)

	// Give the old connection's disconnect time to arrive.
	time.Sleep(200 * time.Millisecond)
	got, ok := s.Sessions().Get("dup")
	require.True(t, ok)
	assert.True(t, got.Connected)
	assert.Equal(t, 1, s.Sessions().Connected())
}

// testContext stands in for testing.T.Context, which needs Go 1.24.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
