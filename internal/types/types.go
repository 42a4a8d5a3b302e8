package types

import (
	"strconv"
	"time"
)

// OfflineAfter is how long after last_seen a user still counts as online.
const OfflineAfter = 60 * time.Second

type User struct {
	Id        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
	IsOnline  bool      `json:"is_online"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Online reports whether the user counts as online at the given instant.
func (u User) Online(now time.Time) bool {
	return now.Sub(u.LastSeen) < OfflineAfter
}

// ChatKind discriminates private pair-chats from communities.
type ChatKind int

const (
	ChatPrivate ChatKind = iota
	ChatCommunity
)

// ChatRef is a resolved chat reference. The sign of the id is the sole
// discriminator: negative ids are communities, positive ids are private
// chats. Magnitude carries no meaning.
type ChatRef struct {
	Id   int64    `json:"id"`
	Kind ChatKind `json:"-"`
}

func NewChatRef(id int64) ChatRef {
	if id < 0 {
		return ChatRef{Id: id, Kind: ChatCommunity}
	}
	return ChatRef{Id: id, Kind: ChatPrivate}
}

// Group is the canonical broadcast-group name for the chat, the string
// form of its id.
func (c ChatRef) Group() string {
	return strconv.FormatInt(c.Id, 10)
}

// UserGroup is the private per-user address group.
func UserGroup(userId int64) string {
	return "user_" + strconv.FormatInt(userId, 10)
}

type Community struct {
	Id          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	InviteLink  string    `json:"invite_link,omitempty"`
	OwnerId     int64     `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type PrivateChat struct {
	Id        int64     `json:"id"`
	UserIds   []int64   `json:"user_ids"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Conversation links a user to a chat. Its existence is exactly the
// authorization condition for receiving the chat's events.
type Conversation struct {
	Id        int64     `json:"id"`
	ChatId    int64     `json:"chat_id"`
	UserId    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Rank orders community membership levels. Higher is more privileged.
type Rank int

const (
	RankBanned Rank = iota
	RankRestricted
	RankNormal
	RankAdmin
	RankOwner
)

func (r Rank) String() string {
	switch r {
	case RankOwner:
		return "owner"
	case RankAdmin:
		return "admin"
	case RankNormal:
		return "normal"
	case RankRestricted:
		return "restricted"
	default:
		return "banned"
	}
}

type Member struct {
	CommunityId int64     `json:"community_id"`
	UserId      int64     `json:"user_id"`
	Rank        Rank      `json:"rank"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

const ContentText = "text"

type Message struct {
	Id              int64     `json:"id"`
	ChatId          int64     `json:"chat_id"`
	SenderId        int64     `json:"sender_id"`
	ContentType     string    `json:"content_type"`
	Text            string    `json:"text,omitempty"`
	ForwardedFromId int64     `json:"forwarded_from,omitempty"`
	IsEdited        bool      `json:"is_edited"`
	IsDeleted       bool      `json:"-"`
	SentAt          time.Time `json:"sent_at"`
	EditedAt        time.Time `json:"edited_at,omitempty"`
}

type Seen struct {
	MessageId int64     `json:"message_id"`
	UserId    int64     `json:"user_id"`
	SeenAt    time.Time `json:"seen_at"`
}
