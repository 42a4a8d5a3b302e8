package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/teris-io/shortid"
)

const (
	pqUniqueViolation = "23505"
	pqFKViolation     = "23503"
)

type PgRepository struct {
	db *sqlx.DB
}

func NewPgRepository(dsn string) (*PgRepository, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgRepository{db: db}, nil
}

func (r *PgRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *PgRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func (r *PgRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	var user User
	err := r.db.GetContext(ctx, &user,
		`INSERT INTO users (username, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, username, email, password_hash, bio, last_seen, created_at, updated_at`,
		params.Username, params.EmailAddress, params.PasswordHash)
	if isUniqueViolation(err) {
		return User{}, ErrAlreadyExist
	}
	return user, err
}

func (r *PgRepository) GetAccountById(ctx context.Context, userId int64) (User, error) {
	var user User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, email, password_hash, bio, last_seen, created_at, updated_at
		 FROM users WHERE id = $1`, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *PgRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, email, password_hash, bio, last_seen, created_at, updated_at
		 FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *PgRepository) UpdateLastSeen(ctx context.Context, userId int64) (User, error) {
	var user User
	err := r.db.GetContext(ctx, &user,
		`UPDATE users SET last_seen = now(), updated_at = now()
		 WHERE id = $1
		 RETURNING id, username, email, password_hash, bio, last_seen, created_at, updated_at`,
		userId)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *PgRepository) ListConversationChatIds(ctx context.Context, userId int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT chat_id FROM conversations WHERE user_id = $1`, userId)
	return ids, err
}

func (r *PgRepository) ListPrivateChatIds(ctx context.Context, userId int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT chat_id FROM conversations WHERE user_id = $1 AND chat_id > 0`, userId)
	return ids, err
}

func (r *PgRepository) ConversationExists(ctx context.Context, chatId, userId int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE chat_id = $1 AND user_id = $2)`,
		chatId, userId)
	return exists, err
}

func (r *PgRepository) GetPrivateChatByUsers(ctx context.Context, userA, userB int64) (PrivateChat, error) {
	var chat PrivateChat
	err := r.db.GetContext(ctx, &chat,
		`SELECT c.id, c.created_at FROM private_chats c
		 JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = $1
		 JOIN chat_participants p2 ON p2.chat_id = c.id AND p2.user_id = $2`,
		userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return PrivateChat{}, ErrNotFound
	}
	if err != nil {
		return PrivateChat{}, err
	}
	chat.UserIds = []int64{userA, userB}
	return chat, nil
}

// CreatePrivateChat creates the chat row, attaches exactly the two
// participants and creates their conversations in one transaction. Any
// failure leaves no half-initialized chat behind.
func (r *PgRepository) CreatePrivateChat(ctx context.Context, userA, userB int64) (PrivateChat, error) {
	if userA == userB {
		return PrivateChat{}, ErrSelfChat
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return PrivateChat{}, err
	}
	defer tx.Rollback()

	var chat PrivateChat
	if err := tx.GetContext(ctx, &chat,
		`INSERT INTO private_chats DEFAULT VALUES RETURNING id, created_at`); err != nil {
		return PrivateChat{}, err
	}

	for _, userId := range []int64{userA, userB} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`,
			chat.Id, userId); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqFKViolation {
				// the peer user doesn't exist
				return PrivateChat{}, ErrNotFound
			}
			return PrivateChat{}, fmt.Errorf("attach participant %d: %w", userId, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (chat_id, user_id) VALUES ($1, $2)`,
			chat.Id, userId); err != nil {
			return PrivateChat{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return PrivateChat{}, err
	}

	chat.UserIds = []int64{userA, userB}
	return chat, nil
}

// negativeId derives a community id from a random v4 uuid. Communities are
// always negative so chat kind stays decidable from the sign alone.
func negativeId() int64 {
	u := uuid.New()
	n := int64(uint64(u[0])<<55 | uint64(u[1])<<47 | uint64(u[2])<<39 | uint64(u[3])<<31 |
		uint64(u[4])<<23 | uint64(u[5])<<15 | uint64(u[6])<<7 | uint64(u[7])>>1)
	if n == 0 {
		n = 1
	}
	return -n
}

func (r *PgRepository) CreateCommunity(ctx context.Context, params CreateCommunityParams) (Community, error) {
	link, err := shortid.Generate()
	if err != nil {
		return Community{}, fmt.Errorf("generate invite link: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Community{}, err
	}
	defer tx.Rollback()

	var community Community
	for {
		err = tx.GetContext(ctx, &community,
			`INSERT INTO communities (id, name, description, invite_link, owner_id)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING
			 RETURNING id, name, description, invite_link, owner_id, created_at`,
			negativeId(), params.Name, params.Description, link, params.OwnerId)
		if !errors.Is(err, sql.ErrNoRows) {
			break
		}
	}
	if err != nil {
		return Community{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO members (community_id, user_id, rank) VALUES ($1, $2, $3)`,
		community.Id, params.OwnerId, int(rankOwner)); err != nil {
		return Community{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (chat_id, user_id) VALUES ($1, $2)`,
		community.Id, params.OwnerId); err != nil {
		return Community{}, err
	}

	return community, tx.Commit()
}

// rank values mirror types.Rank; duplicated here to keep the package
// free of an import cycle with types.
const (
	rankNormal = 2
	rankOwner  = 4
)

func (r *PgRepository) GetCommunityByInviteLink(ctx context.Context, link string) (Community, error) {
	var community Community
	err := r.db.GetContext(ctx, &community,
		`SELECT id, name, description, invite_link, owner_id, created_at
		 FROM communities WHERE invite_link = $1`, link)
	if errors.Is(err, sql.ErrNoRows) {
		return Community{}, ErrNotFound
	}
	return community, err
}

func (r *PgRepository) JoinCommunity(ctx context.Context, communityId, userId int64) (Member, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Member{}, err
	}
	defer tx.Rollback()

	var member Member
	if err := tx.GetContext(ctx, &member,
		`INSERT INTO members (community_id, user_id, rank) VALUES ($1, $2, $3)
		 RETURNING community_id, user_id, rank, created_at`,
		communityId, userId, rankNormal); err != nil {
		if isUniqueViolation(err) {
			return Member{}, ErrAlreadyExist
		}
		return Member{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (chat_id, user_id) VALUES ($1, $2)`,
		communityId, userId); err != nil {
		return Member{}, err
	}

	return member, tx.Commit()
}

func (r *PgRepository) LeaveCommunity(ctx context.Context, communityId, userId int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM members WHERE community_id = $1 AND user_id = $2`,
		communityId, userId); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE chat_id = $1 AND user_id = $2`,
		communityId, userId); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PgRepository) GetMemberRank(ctx context.Context, communityId, userId int64) (int, error) {
	var rank int
	err := r.db.GetContext(ctx, &rank,
		`SELECT rank FROM members WHERE community_id = $1 AND user_id = $2`,
		communityId, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotMember
	}
	return rank, err
}

func (r *PgRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	var msg Message
	err := r.db.GetContext(ctx, &msg,
		`INSERT INTO messages (chat_id, sender_id, content_type, text, forwarded_from_id)
		 VALUES ($1, $2, $3, $4, NULLIF($5, 0))
		 RETURNING id, chat_id, sender_id, content_type, text,
		           COALESCE(forwarded_from_id, 0) AS forwarded_from_id,
		           is_edited, is_deleted, sent_at, COALESCE(edited_at, 'epoch') AS edited_at`,
		params.ChatId, params.SenderId, params.ContentType, params.Text, params.ForwardedFromId)
	return msg, err
}

func (r *PgRepository) GetMessage(ctx context.Context, messageId, chatId int64) (Message, error) {
	var msg Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, chat_id, sender_id, content_type, text,
		        COALESCE(forwarded_from_id, 0) AS forwarded_from_id,
		        is_edited, is_deleted, sent_at, COALESCE(edited_at, 'epoch') AS edited_at
		 FROM messages
		 WHERE id = $1 AND chat_id = $2 AND NOT is_deleted`, messageId, chatId)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return msg, err
}

// UpdateMessageContent replaces the text and flips is_edited exactly
// once: edited_at is only written on the first edit.
func (r *PgRepository) UpdateMessageContent(ctx context.Context, params UpdateMessageParams) (Message, error) {
	var msg Message
	err := r.db.GetContext(ctx, &msg,
		`UPDATE messages
		 SET text = $2,
		     edited_at = CASE WHEN is_edited THEN edited_at ELSE now() END,
		     is_edited = TRUE
		 WHERE id = $1 AND NOT is_deleted
		 RETURNING id, chat_id, sender_id, content_type, text,
		           COALESCE(forwarded_from_id, 0) AS forwarded_from_id,
		           is_edited, is_deleted, sent_at, COALESCE(edited_at, 'epoch') AS edited_at`,
		params.MessageId, params.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return msg, err
}

func (r *PgRepository) HardDeleteMessage(ctx context.Context, messageId int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`, messageId)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) ListChatMessagesForUser(ctx context.Context, chatId, userId int64, limit int, before int64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT m.id, m.chat_id, m.sender_id, m.content_type, m.text,
	                 COALESCE(m.forwarded_from_id, 0) AS forwarded_from_id,
	                 m.is_edited, m.is_deleted, m.sent_at, COALESCE(m.edited_at, 'epoch') AS edited_at
	          FROM messages m
	          WHERE m.chat_id = $1 AND NOT m.is_deleted
	            AND NOT EXISTS (
	              SELECT 1 FROM deleted_messages d
	              WHERE d.message_id = m.id AND d.user_id = $2)
	            AND ($3 = 0 OR m.id < $3)
	          ORDER BY m.id DESC
	          LIMIT $4`

	var msgs []Message
	err := r.db.SelectContext(ctx, &msgs, query, chatId, userId, before, limit)
	return msgs, err
}

// CreateDeletedMessage records a per-user delete marker. The second
// return value reports whether a new row was created; repeated calls
// find the existing marker.
func (r *PgRepository) CreateDeletedMessage(ctx context.Context, messageId, userId int64) (DeletedMessage, bool, error) {
	var dm DeletedMessage
	err := r.db.GetContext(ctx, &dm,
		`INSERT INTO deleted_messages (message_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING
		 RETURNING id, message_id, user_id, deleted_at`, messageId, userId)
	if err == nil {
		return dm, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return DeletedMessage{}, false, err
	}

	err = r.db.GetContext(ctx, &dm,
		`SELECT id, message_id, user_id, deleted_at FROM deleted_messages
		 WHERE message_id = $1 AND user_id = $2`, messageId, userId)
	return dm, false, err
}

func (r *PgRepository) IsMessageDeletedForUser(ctx context.Context, messageId, userId int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM deleted_messages WHERE message_id = $1 AND user_id = $2)`,
		messageId, userId)
	return exists, err
}

func (r *PgRepository) CreateSeen(ctx context.Context, messageId, userId int64) (Seen, error) {
	var seen Seen
	err := r.db.GetContext(ctx, &seen,
		`INSERT INTO seen (message_id, user_id) VALUES ($1, $2)
		 RETURNING id, message_id, user_id, seen_at`, messageId, userId)
	if isUniqueViolation(err) {
		return Seen{}, ErrAlreadySeen
	}
	return seen, err
}
