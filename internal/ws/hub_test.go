package ws

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"socialchat/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(userID uint, buffer int) *Client {
	return &Client{
		id:       "session-" + strconv.FormatUint(uint64(userID), 10),
		identity: auth.Identity{UserID: userID, Username: "user" + strconv.FormatUint(uint64(userID), 10)},
		send:     make(chan []byte, buffer),
		subs:     make(map[string]string),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func receiveFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case b, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var f Frame
		require.NoError(t, json.Unmarshal(b, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return Frame{}
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := startHub(t)
	c := newTestClient(1, sendBuffer)

	require.True(t, h.Register(c))
	assert.Eventually(t, func() bool { return h.Sessions() == 1 }, time.Second, 5*time.Millisecond)

	h.Unregister(c)
	assert.Eventually(t, func() bool { return h.Sessions() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-c.send
	assert.False(t, ok, "unregister closes the send channel")

	// a second unregister is a no-op
	h.Unregister(c)
}

func TestHub_PublishFansOutToSubscribers(t *testing.T) {
	h := startHub(t)
	dest := ConversationTopic(7)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(uint(i+1), sendBuffer)
		require.True(t, h.Register(clients[i]))
		h.Subscribe(clients[i], dest, dest, "sub-"+strconv.Itoa(i))
	}
	bystander := newTestClient(9, sendBuffer)
	require.True(t, h.Register(bystander))
	h.Subscribe(bystander, ConversationTopic(8), ConversationTopic(8), "other")

	assert.Equal(t, 3, h.Subscribers(dest))
	require.True(t, h.Publish(dest, []byte(`{"content":"hello"}`)))

	for i, c := range clients {
		f := receiveFrame(t, c)
		assert.Equal(t, CmdMessage, f.Command)
		assert.Equal(t, dest, f.Destination)
		assert.Equal(t, "sub-"+strconv.Itoa(i), f.ID)
		assert.JSONEq(t, `{"content":"hello"}`, string(f.Body))
	}
	assert.Equal(t, 1, h.Subscribers(ConversationTopic(8)))
	assert.Empty(t, bystander.send)
}

func TestHub_MessageUsesSubscriberAlias(t *testing.T) {
	h := startHub(t)
	c := newTestClient(4, sendBuffer)
	require.True(t, h.Register(c))
	h.Subscribe(c, UserQueue(4, NotificationQueue), "/user/queue/notifications", "n")

	require.True(t, h.Publish(UserQueue(4, NotificationQueue), []byte(`{}`)))
	f := receiveFrame(t, c)
	assert.Equal(t, "/user/queue/notifications", f.Destination)
}

func TestHub_SubscribeRequiresRegistration(t *testing.T) {
	h := startHub(t)
	c := newTestClient(1, sendBuffer)

	h.Subscribe(c, PresenceTopic(2), PresenceTopic(2), "p")
	assert.Equal(t, 0, h.Subscribers(PresenceTopic(2)))
}

func TestHub_Unsubscribe(t *testing.T) {
	h := startHub(t)
	c := newTestClient(1, sendBuffer)
	require.True(t, h.Register(c))
	h.Subscribe(c, PresenceTopic(2), PresenceTopic(2), "p")

	h.Unsubscribe(c, PresenceTopic(2), "wrong-id")
	assert.Equal(t, 1, h.Subscribers(PresenceTopic(2)))

	h.Unsubscribe(c, PresenceTopic(2), "p")
	assert.Equal(t, 0, h.Subscribers(PresenceTopic(2)))
}

func TestHub_UnregisterDropsSubscriptions(t *testing.T) {
	h := startHub(t)
	c := newTestClient(1, sendBuffer)
	require.True(t, h.Register(c))
	h.Subscribe(c, ConversationTopic(1), ConversationTopic(1), "a")
	h.Subscribe(c, TypingTopic(1), TypingTopic(1), "b")

	h.Unregister(c)
	assert.Equal(t, 0, h.Subscribers(ConversationTopic(1)))
	assert.Equal(t, 0, h.Subscribers(TypingTopic(1)))
}

func TestHub_SlowConsumerIsDropped(t *testing.T) {
	h := startHub(t)
	slow := newTestClient(1, 1)
	fast := newTestClient(2, sendBuffer)
	dest := ConversationTopic(3)
	for _, c := range []*Client{slow, fast} {
		require.True(t, h.Register(c))
		h.Subscribe(c, dest, dest, "s")
	}

	require.True(t, h.Publish(dest, []byte(`1`)))
	require.True(t, h.Publish(dest, []byte(`2`)))

	assert.Eventually(t, func() bool { return h.Sessions() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.Subscribers(dest))

	// the buffered frame is still readable, then the channel is closed
	f := receiveFrame(t, slow)
	assert.JSONEq(t, `1`, string(f.Body))
	_, ok := <-slow.send
	assert.False(t, ok)

	assert.JSONEq(t, `1`, string(receiveFrame(t, fast).Body))
	assert.JSONEq(t, `2`, string(receiveFrame(t, fast).Body))
}

func TestHub_SendToSingleSession(t *testing.T) {
	h := startHub(t)
	c := newTestClient(1, sendBuffer)
	other := newTestClient(2, sendBuffer)
	require.True(t, h.Register(c))
	require.True(t, h.Register(other))

	h.Send(c, errorFrame("boom"))
	f := receiveFrame(t, c)
	assert.Equal(t, CmdError, f.Command)
	assert.JSONEq(t, `{"message":"boom"}`, string(f.Body))
	assert.Equal(t, 0, h.Subscribers("anything"))
	assert.Empty(t, other.send)

	// unregistered sessions are skipped silently
	h.Send(newTestClient(3, sendBuffer), errorFrame("ignored"))
}

func TestHub_StopClosesSessions(t *testing.T) {
	h := NewHub()
	go h.Run()
	c := newTestClient(1, sendBuffer)
	require.True(t, h.Register(c))

	h.Stop()
	h.Stop()

	select {
	case _, ok := <-c.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on stop")
	}
	assert.False(t, h.Register(newTestClient(2, sendBuffer)))
	assert.False(t, h.Publish(ConversationTopic(1), []byte(`{}`)))
	assert.Equal(t, 0, h.Subscribers(ConversationTopic(1)))
}

func TestHub_Concurrent(t *testing.T) {
	h := startHub(t)
	dest := PresenceTopic(42)

	var wg sync.WaitGroup
	numClients := 10
	clients := make([]*Client, numClients)
	for i := 0; i < numClients; i++ {
		clients[i] = newTestClient(uint(i+1), sendBuffer)
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			h.Register(c)
			h.Subscribe(c, dest, dest, "p")
		}(clients[i])
	}
	wg.Wait()

	assert.Equal(t, numClients, h.Sessions())
	assert.Equal(t, numClients, h.Subscribers(dest))

	require.True(t, h.Publish(dest, []byte(`{"online":true}`)))
	for _, c := range clients {
		assert.Equal(t, CmdMessage, receiveFrame(t, c).Command)
	}
}
