package transport

import "sync"

// Local is the in-process transport: subscriber sets per group name,
// shared by every connection goroutine.
type Local struct {
	mu     sync.RWMutex
	groups map[string]map[Subscriber]struct{}
}

func NewLocal() *Local {
	return &Local{groups: make(map[string]map[Subscriber]struct{})}
}

// Subscribe adds sub to the group. Subscribing twice is a no-op.
func (l *Local) Subscribe(group string, sub Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.groups[group]; !ok {
		l.groups[group] = make(map[Subscriber]struct{})
	}
	l.groups[group][sub] = struct{}{}
}

// Unsubscribe removes sub from the group. Unsubscribing from a group
// the subscriber never joined is a no-op.
func (l *Local) Unsubscribe(group string, sub Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs, ok := l.groups[group]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(l.groups, group)
	}
}

func (l *Local) Publish(group string, ev Event) error {
	l.mu.RLock()
	subs := make([]Subscriber, 0, len(l.groups[group]))
	for sub := range l.groups[group] {
		subs = append(subs, sub)
	}
	l.mu.RUnlock()

	for _, sub := range subs {
		sub.Deliver(group, ev)
	}
	return nil
}

// Subscribers reports the current subscriber count for a group.
func (l *Local) Subscribers(group string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.groups[group])
}
