package host

import (
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/codeshot/internal/runtime/ids"
)

// cachedReply is a reply kept for requests the webview resends after the
// host already answered.
type cachedReply struct {
	topic    string
	payload  []byte
	metadata message.Metadata
}

func (r *cachedReply) message() *message.Message {
	msg := message.NewMessage(ids.New(), r.payload)
	for k, v := range r.metadata {
		msg.Metadata.Set(k, v)
	}
	return msg
}

type replyEntry struct {
	reply   *cachedReply
	expires time.Time
}

// replyCache tracks correlation ids seen within the window. An entry with no
// reply is a request still being handled.
type replyCache struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*replyEntry
}

func newReplyCache(window time.Duration) *replyCache {
	return &replyCache{window: window, now: time.Now, entries: make(map[string]*replyEntry)}
}

// seen reports whether id was seen before and returns its reply, if any. An
// unseen id is recorded as in flight.
func (c *replyCache) seen(id string) (*cachedReply, bool) {
	if id == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.prune(now)

	if e, ok := c.entries[id]; ok {
		return e.reply, true
	}
	c.entries[id] = &replyEntry{expires: now.Add(c.window)}
	return nil, false
}

func (c *replyCache) store(id, topic string, msg *message.Message) {
	if id == "" {
		return
	}
	md := make(message.Metadata, len(msg.Metadata))
	for k, v := range msg.Metadata {
		md[k] = v
	}
	reply := &cachedReply{topic: topic, payload: append([]byte(nil), msg.Payload...), metadata: md}
	c.mu.Lock()
	c.entries[id] = &replyEntry{reply: reply, expires: c.now().Add(c.window)}
	c.mu.Unlock()
}

// forget drops id so a resend runs the command again.
func (c *replyCache) forget(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

func (c *replyCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *replyCache) prune(now time.Time) {
	for id, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, id)
		}
	}
}
