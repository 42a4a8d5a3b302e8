// Package transport is the pub/sub layer events fan out through:
// named broadcast groups with dynamic subscriber sets. Delivery is
// at-most-once and best-effort, with no ordering across groups.
package transport

// Event kinds select which subscriber-side handler runs.
const (
	KindMessage    = "send_message"
	KindOnline     = "send_online"
	KindGroupJoin  = "group_join"
	KindGroupLeave = "group_leave"
	KindHardDelete = "hard_delete"
)

// Event is one published domain event. Title is the client-visible
// action name; Kind and the typed fields are transport metadata and
// are stripped before a frame reaches a socket.
type Event struct {
	Kind      string         `json:"kind"`
	Title     string         `json:"title,omitempty"`
	MessageId int64          `json:"message_id,omitempty"`
	UserId    int64          `json:"user_id,omitempty"`
	GroupName string         `json:"group_name,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Subscriber receives events for groups it is subscribed to. Deliver
// must not block: slow consumers drop, they do not back-pressure the
// publisher.
type Subscriber interface {
	Deliver(group string, ev Event)
}

type Transport interface {
	Publish(group string, ev Event) error
	Subscribe(group string, sub Subscriber)
	Unsubscribe(group string, sub Subscriber)
}
