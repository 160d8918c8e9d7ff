package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fleamarket-app/backend/internal/model"
	"github.com/fleamarket-app/backend/internal/repository"
	"gorm.io/gorm"
)

// MessageView is a persisted message enriched with sender display fields,
// the shape delivered over both REST and the websocket topic.
type MessageView struct {
	ID                    uint64    `json:"id"`
	RoomID                uint64    `json:"roomId"`
	SenderUID             string    `json:"senderId"`
	SenderNickName        string    `json:"senderNickName"`
	SenderProfileImageURL *string   `json:"senderProfileImageUrl,omitempty"`
	Content               string    `json:"content"`
	InsertedAt            time.Time `json:"insertedAt"`
}

type OpenRoomResult struct {
	RoomID    uint64  `json:"roomId"`
	ListingID *uint64 `json:"listingId"`
	BuyerUID  string  `json:"buyerId"`
	SellerUID string  `json:"sellerId"`
}

type MessageSnippet struct {
	ID                    uint64    `json:"id"`
	Content               string    `json:"content"`
	InsertedAt            time.Time `json:"insertedAt"`
	SenderUID             string    `json:"senderId"`
	SenderNickName        string    `json:"senderNickName"`
	SenderProfileImageURL *string   `json:"senderProfileImageUrl,omitempty"`
}

type RoomSummary struct {
	RoomID                uint64          `json:"id"`
	ListingID             *uint64         `json:"listingId"`
	ListingTitle          *string         `json:"listingTitle"`
	OtherUID              string          `json:"otherMemberId"`
	OtherNickName         string          `json:"otherNickName"`
	OtherEmail            string          `json:"otherEmail,omitempty"`
	OtherProfileImageURL  *string         `json:"otherProfileImageUrl,omitempty"`
	LastMessage           *MessageSnippet `json:"lastMessage"`
	UnreadCount           int64           `json:"unreadCount"`
}

type RoomMember struct {
	UID               string  `json:"uid"`
	NickName          string  `json:"nickName"`
	ProfileImageURL   *string `json:"profileImageUrl,omitempty"`
	LastReadMessageID *uint64 `json:"lastReadMessageId,omitempty"`
}

type RoomDetail struct {
	RoomID      uint64         `json:"roomId"`
	Listing     *model.Listing `json:"listing,omitempty"`
	SellerUID   string         `json:"sellerId,omitempty"`
	Members     []RoomMember   `json:"members"`
	UnreadCount int64          `json:"unreadCount"`
}

// Broadcaster fans a persisted message out to the room's live subscribers.
// Publish must not block the send path.
type Broadcaster interface {
	Publish(roomID uint64, msg MessageView)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(uint64, MessageView) {}

type ChatService interface {
	OpenOrGetRoom(ctx context.Context, listingID uint64, requesterUID string) (*OpenRoomResult, error)
	OpenDirectRoom(ctx context.Context, requesterUID, otherUID string) (*OpenRoomResult, error)
	ListMyRooms(ctx context.Context, memberUID string) ([]RoomSummary, error)
	RoomDetail(ctx context.Context, roomID uint64, requesterUID string) (*RoomDetail, error)
	ListMessages(ctx context.Context, roomID uint64, requesterUID string, beforeID, afterID *uint64, limit int) ([]MessageView, error)
	SendMessage(ctx context.Context, roomID uint64, senderUID, content string) (*MessageView, error)
	MarkRead(ctx context.Context, roomID uint64, memberUID string, lastMessageID *uint64) error
	DeleteRoom(ctx context.Context, roomID uint64, requesterUID string) error
	IsParticipant(ctx context.Context, roomID uint64, memberUID string) (bool, error)
}

type chatService struct {
	repo        repository.ChatRepository
	listingRepo repository.ListingRepository
	members     MemberDirectory
	notifier    NotificationService
	broadcaster Broadcaster
}

func NewChatService(repo repository.ChatRepository, listingRepo repository.ListingRepository, members MemberDirectory, notifier NotificationService, broadcaster Broadcaster) ChatService {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	return &chatService{
		repo:        repo,
		listingRepo: listingRepo,
		members:     members,
		notifier:    notifier,
		broadcaster: broadcaster,
	}
}

func (s *chatService) OpenOrGetRoom(ctx context.Context, listingID uint64, requesterUID string) (*OpenRoomResult, error) {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sellerUID := listing.SellerUID
	if sellerUID == requesterUID {
		return nil, ErrSelfChat
	}
	room, err := s.openOrGet(ctx, listingID, requesterUID, sellerUID)
	if err != nil {
		return nil, err
	}
	lid := listingID
	return &OpenRoomResult{
		RoomID:    room.ID,
		ListingID: &lid,
		BuyerUID:  requesterUID,
		SellerUID: sellerUID,
	}, nil
}

func (s *chatService) OpenDirectRoom(ctx context.Context, requesterUID, otherUID string) (*OpenRoomResult, error) {
	if otherUID == "" || otherUID == requesterUID {
		return nil, ErrSelfChat
	}
	if _, ok := s.members.Display(ctx, otherUID); !ok {
		return nil, ErrNotFound
	}
	room, err := s.openOrGet(ctx, 0, requesterUID, otherUID)
	if err != nil {
		return nil, err
	}
	return &OpenRoomResult{
		RoomID:    room.ID,
		BuyerUID:  requesterUID,
		SellerUID: otherUID,
	}, nil
}

// openOrGet resolves the at-most-one-room contract. The create races with
// concurrent callers for the same tuple; the unique index decides the winner
// and losers re-fetch instead of surfacing the conflict.
func (s *chatService) openOrGet(ctx context.Context, listingID uint64, a, b string) (*model.Room, error) {
	lo, hi := model.NormalizePair(a, b)
	room, err := s.repo.FindRoomByPair(ctx, listingID, lo, hi)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}
	created := &model.Room{ListingID: listingID, MemberLo: lo, MemberHi: hi}
	if err := s.repo.CreateRoom(ctx, created); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			room, ferr := s.repo.FindRoomByPair(ctx, listingID, lo, hi)
			if ferr != nil {
				return nil, ferr
			}
			if room != nil {
				return room, nil
			}
		}
		return nil, err
	}
	return created, nil
}

func (s *chatService) ListMyRooms(ctx context.Context, memberUID string) ([]RoomSummary, error) {
	rows, err := s.repo.ListRoomSummaries(ctx, memberUID)
	if err != nil {
		return nil, err
	}
	uids := make([]string, 0, len(rows)*2)
	for _, row := range rows {
		uids = append(uids, row.OtherUID)
		if row.LastSenderUID != nil {
			uids = append(uids, *row.LastSenderUID)
		}
	}
	displays := s.members.DisplayAll(ctx, uids)

	out := make([]RoomSummary, 0, len(rows))
	for _, row := range rows {
		other := displays[row.OtherUID]
		summary := RoomSummary{
			RoomID:               row.RoomID,
			ListingTitle:         row.ListingTitle,
			OtherUID:             row.OtherUID,
			OtherNickName:        other.Nickname,
			OtherEmail:           other.Email,
			OtherProfileImageURL: other.AvatarURL,
			UnreadCount:          row.UnreadCount,
		}
		if row.ListingID != 0 {
			lid := row.ListingID
			summary.ListingID = &lid
		}
		if row.LastMessageID != nil {
			snippet := &MessageSnippet{ID: *row.LastMessageID}
			if row.LastContent != nil {
				snippet.Content = *row.LastContent
			}
			if row.LastInsertedAt != nil {
				snippet.InsertedAt = *row.LastInsertedAt
			}
			if row.LastSenderUID != nil {
				sender := displays[*row.LastSenderUID]
				snippet.SenderUID = *row.LastSenderUID
				snippet.SenderNickName = sender.Nickname
				snippet.SenderProfileImageURL = sender.AvatarURL
			}
			summary.LastMessage = snippet
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *chatService) RoomDetail(ctx context.Context, roomID uint64, requesterUID string) (*RoomDetail, error) {
	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Has(requesterUID) {
		return nil, ErrForbidden
	}
	detail := &RoomDetail{RoomID: room.ID}
	if room.ListingID != 0 {
		listing, err := s.listingRepo.FindByID(ctx, room.ListingID)
		if err == nil {
			detail.Listing = listing
			detail.SellerUID = listing.SellerUID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	displays := s.members.DisplayAll(ctx, []string{room.MemberLo, room.MemberHi})
	for _, uid := range []string{room.MemberLo, room.MemberHi} {
		d := displays[uid]
		member := RoomMember{
			UID:             uid,
			NickName:        d.Nickname,
			ProfileImageURL: d.AvatarURL,
		}
		p, err := s.repo.FindParticipant(ctx, room.ID, uid)
		if err != nil {
			return nil, err
		}
		if p != nil {
			member.LastReadMessageID = p.LastReadMessageID
		}
		detail.Members = append(detail.Members, member)
	}
	unread, err := s.repo.CountUnread(ctx, room.ID, requesterUID)
	if err != nil {
		return nil, err
	}
	detail.UnreadCount = unread
	return detail, nil
}

func (s *chatService) ListMessages(ctx context.Context, roomID uint64, requesterUID string, beforeID, afterID *uint64, limit int) ([]MessageView, error) {
	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Has(requesterUID) {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var rows []model.Message
	switch {
	case afterID != nil:
		// catch-up after reconnect: everything newer than the cursor,
		// ascending and unbounded
		rows, err = s.repo.ListMessagesAfter(ctx, roomID, *afterID)
	case beforeID != nil:
		rows, err = s.repo.ListMessagesBefore(ctx, roomID, *beforeID, limit)
	default:
		rows, err = s.repo.ListLatestMessages(ctx, roomID, limit)
	}
	if err != nil {
		return nil, err
	}
	if afterID == nil {
		reverseMessages(rows)
	}
	return s.enrich(ctx, rows), nil
}

func (s *chatService) SendMessage(ctx context.Context, roomID uint64, senderUID, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Has(senderUID) {
		return nil, ErrForbidden
	}

	msg := &model.Message{RoomID: roomID, SenderUID: senderUID, Content: content}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	// sending implies having read up to the new message
	if err := s.repo.AdvanceReadPosition(ctx, roomID, senderUID, msg.ID); err != nil {
		return nil, err
	}

	views := s.enrich(ctx, []model.Message{*msg})
	view := views[0]

	if s.notifier != nil {
		rid := roomID
		body := content
		if len(body) > 200 {
			body = body[:200]
		}
		s.notifier.Notify(ctx, room.Other(senderUID), "chat_message", view.SenderNickName, body, nil, &rid)
	}
	s.broadcaster.Publish(roomID, view)
	return &view, nil
}

func (s *chatService) MarkRead(ctx context.Context, roomID uint64, memberUID string, lastMessageID *uint64) error {
	if lastMessageID == nil {
		return nil
	}
	if err := s.repo.AdvanceReadPosition(ctx, roomID, memberUID, *lastMessageID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.MarkByRoom(ctx, memberUID, roomID)
	}
	return nil
}

func (s *chatService) DeleteRoom(ctx context.Context, roomID uint64, requesterUID string) error {
	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Has(requesterUID) {
		return ErrForbidden
	}
	return s.repo.DeleteRoomCascade(ctx, roomID)
}

func (s *chatService) IsParticipant(ctx context.Context, roomID uint64, memberUID string) (bool, error) {
	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return room.Has(memberUID), nil
}

func (s *chatService) findRoom(ctx context.Context, roomID uint64) (*model.Room, error) {
	room, err := s.repo.FindRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return room, nil
}

// enrich attaches sender display fields. Lookup failures degrade to the
// withdrawn-member fallback inside the directory; they never fail delivery.
func (s *chatService) enrich(ctx context.Context, rows []model.Message) []MessageView {
	uids := make([]string, 0, len(rows))
	for _, m := range rows {
		uids = append(uids, m.SenderUID)
	}
	displays := s.members.DisplayAll(ctx, uids)
	out := make([]MessageView, 0, len(rows))
	for _, m := range rows {
		d := displays[m.SenderUID]
		out = append(out, MessageView{
			ID:                    m.ID,
			RoomID:                m.RoomID,
			SenderUID:             m.SenderUID,
			SenderNickName:        d.Nickname,
			SenderProfileImageURL: d.AvatarURL,
			Content:               m.Content,
			InsertedAt:            m.InsertedAt,
		})
	}
	return out
}

func reverseMessages(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
