package database

import "time"

type User struct {
	Id           int64     `db:"id"`
	Username     string    `db:"username"`
	EmailAddress string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Bio          string    `db:"bio"`
	LastSeen     time.Time `db:"last_seen"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type PrivateChat struct {
	Id        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UserIds   []int64   `db:"-"`
}

type Community struct {
	Id          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	InviteLink  string    `db:"invite_link"`
	OwnerId     int64     `db:"owner_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type Member struct {
	CommunityId int64     `db:"community_id"`
	UserId      int64     `db:"user_id"`
	Rank        int       `db:"rank"`
	CreatedAt   time.Time `db:"created_at"`
}

type Message struct {
	Id              int64     `db:"id"`
	ChatId          int64     `db:"chat_id"`
	SenderId        int64     `db:"sender_id"`
	ContentType     string    `db:"content_type"`
	Text            string    `db:"text"`
	ForwardedFromId int64     `db:"forwarded_from_id"`
	IsEdited        bool      `db:"is_edited"`
	IsDeleted       bool      `db:"is_deleted"`
	SentAt          time.Time `db:"sent_at"`
	EditedAt        time.Time `db:"edited_at"`
}

type Seen struct {
	Id        int64     `db:"id"`
	MessageId int64     `db:"message_id"`
	UserId    int64     `db:"user_id"`
	SeenAt    time.Time `db:"seen_at"`
}

type DeletedMessage struct {
	Id        int64     `db:"id"`
	MessageId int64     `db:"message_id"`
	UserId    int64     `db:"user_id"`
	DeletedAt time.Time `db:"deleted_at"`
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateCommunityParams struct {
	Name        string
	Description string
	OwnerId     int64
}

type CreateMessageParams struct {
	ChatId          int64
	SenderId        int64
	ContentType     string
	Text            string
	ForwardedFromId int64
}

type UpdateMessageParams struct {
	MessageId int64
	Text      string
}
