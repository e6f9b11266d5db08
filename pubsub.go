package ezib

import (
	"fmt"
	"sync"
)

const defaultSubscriberBuffer = 16

// PubSub fans wrapper messages out to subscribers by topic. A topic is
// either a request id or a named event, stringified with fmt.Sprint so
// both int64 and string keys work.
type PubSub struct {
	mu   sync.RWMutex
	subs map[string][]chan string
}

// NewPubSub returns an empty PubSub ready for use.
func NewPubSub() *PubSub {
	return &PubSub{subs: make(map[string][]chan string)}
}

// Subscribe registers a new channel on the given topic and returns it
// together with its unsubscribe function. The optional size overrides the
// default channel buffer. Unsubscribing closes the channel.
func (ps *PubSub) Subscribe(topic any, size ...int) (chan string, func()) {
	bufSize := defaultSubscriberBuffer
	if len(size) > 0 {
		bufSize = size[0]
	}
	key := fmt.Sprint(topic)
	ch := make(chan string, bufSize)

	ps.mu.Lock()
	ps.subs[key] = append(ps.subs[key], ch)
	ps.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			ps.mu.Lock()
			channels := ps.subs[key]
			for i, c := range channels {
				if c == ch {
					ps.subs[key] = append(channels[:i], channels[i+1:]...)
					break
				}
			}
			if len(ps.subs[key]) == 0 {
				delete(ps.subs, key)
			}
			ps.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Publish delivers msg to every subscriber of topic. A subscriber with a
// full buffer misses the message.
func (ps *PubSub) Publish(topic any, msg string) {
	key := fmt.Sprint(topic)
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, ch := range ps.subs[key] {
		select {
		case ch <- msg:
		default:
			log.Warn().Str("topic", key).Msg("subscriber buffer full, message dropped")
		}
	}
}
