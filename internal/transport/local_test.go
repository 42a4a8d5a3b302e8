package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type captureSub struct {
	mu     sync.Mutex
	events []Event
	groups []string

	// onDeliver, if set, runs inside Deliver. Used to prove
	// subscribers may call back into the transport mid-delivery.
	onDeliver func()
}

func (s *captureSub) Deliver(group string, ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.groups = append(s.groups, group)
	s.mu.Unlock()

	if s.onDeliver != nil {
		s.onDeliver()
	}
}

func (s *captureSub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestLocalSubscribe(t *testing.T) {
	tr := NewLocal()
	sub := &captureSub{}

	tr.Subscribe("10", sub)
	tr.Subscribe("10", sub)
	assert.Equal(t, 1, tr.Subscribers("10"), "double subscribe is a no-op")

	other := &captureSub{}
	tr.Subscribe("10", other)
	assert.Equal(t, 2, tr.Subscribers("10"))

	tr.Unsubscribe("10", sub)
	assert.Equal(t, 1, tr.Subscribers("10"))

	tr.Unsubscribe("10", sub)
	tr.Unsubscribe("never-existed", sub)
	assert.Equal(t, 1, tr.Subscribers("10"))
}

func TestLocalPublish(t *testing.T) {
	tr := NewLocal()
	a := &captureSub{}
	b := &captureSub{}
	outsider := &captureSub{}

	tr.Subscribe("10", a)
	tr.Subscribe("10", b)
	tr.Subscribe("11", outsider)

	assert.NoError(t, tr.Publish("10", Event{Kind: KindMessage, MessageId: 100}))

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 0, outsider.count())
	assert.Equal(t, "10", a.groups[0])
	assert.Equal(t, int64(100), a.events[0].MessageId)
}

func TestLocalPublishEmptyGroup(t *testing.T) {
	tr := NewLocal()
	assert.NoError(t, tr.Publish("10", Event{Kind: KindMessage}))
}

func TestLocalPublishAllowsReentrantSubscribe(t *testing.T) {
	tr := NewLocal()
	late := &captureSub{}
	a := &captureSub{}
	a.onDeliver = func() {
		tr.Subscribe("10", late)
	}
	tr.Subscribe("10", a)

	assert.NoError(t, tr.Publish("10", Event{Kind: KindGroupJoin, GroupName: "10"}))

	assert.Equal(t, 2, tr.Subscribers("10"))
	assert.Equal(t, 0, late.count(), "snapshot taken before delivery excludes late joiners")
}
