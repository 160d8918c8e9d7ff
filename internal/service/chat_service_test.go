package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fleamarket-app/backend/internal/model"
	"github.com/fleamarket-app/backend/internal/repository"
	"gorm.io/gorm"
)

type pairKey struct {
	listingID uint64
	lo, hi    string
}

type partKey struct {
	roomID uint64
	uid    string
}

// fakeChatRepo mimics the storage contract in memory, including the unique
// index on (listing, pair) that resolves the create race.
type fakeChatRepo struct {
	mu       sync.Mutex
	rooms    map[uint64]*model.Room
	byPair   map[pairKey]uint64
	parts    map[partKey]*uint64
	msgs     map[uint64]model.Message
	nextRoom uint64
	nextMsg  uint64
	clock    int64
	created  int
}

// tick is the fake's monotonic clock; each stored row gets a strictly later
// timestamp than the one before, whatever its kind.
func (f *fakeChatRepo) tick() time.Time {
	f.clock++
	return time.Unix(1700000000+f.clock, 0)
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		rooms:  make(map[uint64]*model.Room),
		byPair: make(map[pairKey]uint64),
		parts:  make(map[partKey]*uint64),
		msgs:   make(map[uint64]model.Message),
	}
}

func (f *fakeChatRepo) FindRoomByPair(ctx context.Context, listingID uint64, lo, hi string) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byPair[pairKey{listingID, lo, hi}]; ok {
		room := *f.rooms[id]
		return &room, nil
	}
	return nil, nil
}

func (f *fakeChatRepo) CreateRoom(ctx context.Context, room *model.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{room.ListingID, room.MemberLo, room.MemberHi}
	if _, ok := f.byPair[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	f.nextRoom++
	room.ID = f.nextRoom
	room.CreatedAt = f.tick()
	cp := *room
	f.rooms[room.ID] = &cp
	f.byPair[key] = room.ID
	f.parts[partKey{room.ID, room.MemberLo}] = nil
	f.parts[partKey{room.ID, room.MemberHi}] = nil
	f.created++
	return nil
}

func (f *fakeChatRepo) FindRoomByID(ctx context.Context, id uint64) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *room
	return &cp, nil
}

func (f *fakeChatRepo) DeleteRoomCascade(ctx context.Context, roomID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for id, m := range f.msgs {
		if m.RoomID == roomID {
			delete(f.msgs, id)
		}
	}
	for k := range f.parts {
		if k.roomID == roomID {
			delete(f.parts, k)
		}
	}
	delete(f.byPair, pairKey{room.ListingID, room.MemberLo, room.MemberHi})
	delete(f.rooms, roomID)
	return nil
}

func (f *fakeChatRepo) CreateMessage(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	msg.ID = f.nextMsg
	msg.InsertedAt = f.tick()
	f.msgs[msg.ID] = *msg
	return nil
}

func (f *fakeChatRepo) roomMessages(roomID uint64) []model.Message {
	var out []model.Message
	for _, m := range f.msgs {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeChatRepo) ListMessagesAfter(ctx context.Context, roomID, afterID uint64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.roomMessages(roomID) {
		if m.ID > afterID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeChatRepo) ListMessagesBefore(ctx context.Context, roomID, beforeID uint64, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asc := f.roomMessages(roomID)
	var out []model.Message
	for i := len(asc) - 1; i >= 0 && len(out) < limit; i-- {
		if asc[i].ID < beforeID {
			out = append(out, asc[i])
		}
	}
	return out, nil
}

func (f *fakeChatRepo) ListLatestMessages(ctx context.Context, roomID uint64, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asc := f.roomMessages(roomID)
	var out []model.Message
	for i := len(asc) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, asc[i])
	}
	return out, nil
}

func (f *fakeChatRepo) FindParticipant(ctx context.Context, roomID uint64, memberUID string) (*model.RoomParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.parts[partKey{roomID, memberUID}]
	if !ok {
		return nil, nil
	}
	return &model.RoomParticipant{RoomID: roomID, MemberUID: memberUID, LastReadMessageID: pos}, nil
}

func (f *fakeChatRepo) AdvanceReadPosition(ctx context.Context, roomID uint64, memberUID string, messageID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := partKey{roomID, memberUID}
	cur, ok := f.parts[key]
	if !ok || cur == nil || *cur < messageID {
		id := messageID
		f.parts[key] = &id
	}
	return nil
}

func (f *fakeChatRepo) CountUnread(ctx context.Context, roomID uint64, memberUID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countUnreadLocked(roomID, memberUID), nil
}

func (f *fakeChatRepo) countUnreadLocked(roomID uint64, memberUID string) int64 {
	var since uint64
	if pos, ok := f.parts[partKey{roomID, memberUID}]; ok && pos != nil {
		since = *pos
	}
	var cnt int64
	for _, m := range f.msgs {
		if m.RoomID == roomID && m.SenderUID != memberUID && m.ID > since {
			cnt++
		}
	}
	return cnt
}

func (f *fakeChatRepo) ListRoomSummaries(ctx context.Context, memberUID string) ([]repository.RoomSummaryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []repository.RoomSummaryRow
	for _, room := range f.rooms {
		if !room.Has(memberUID) {
			continue
		}
		row := repository.RoomSummaryRow{
			RoomID:        room.ID,
			ListingID:     room.ListingID,
			OtherUID:      room.Other(memberUID),
			UnreadCount:   f.countUnreadLocked(room.ID, memberUID),
			RoomCreatedAt: room.CreatedAt,
		}
		msgs := f.roomMessages(room.ID)
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			row.LastMessageID = &last.ID
			row.LastContent = &last.Content
			row.LastInsertedAt = &last.InsertedAt
			row.LastSenderUID = &last.SenderUID
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		// rooms with messages come first, then by activity time desc
		ihas, jhas := rows[i].LastInsertedAt != nil, rows[j].LastInsertedAt != nil
		if ihas != jhas {
			return ihas
		}
		ti, tj := rows[i].RoomCreatedAt, rows[j].RoomCreatedAt
		if ihas {
			ti, tj = *rows[i].LastInsertedAt, *rows[j].LastInsertedAt
		}
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return rows[i].RoomID > rows[j].RoomID
	})
	return rows, nil
}

func (f *fakeChatRepo) SetDB(db *gorm.DB) {}

type fakeListingRepo struct {
	listings  map[uint64]*model.Listing
	nextID    uint64
	lastLimit int
	thumbs    map[uint64]string
}

func (f *fakeListingRepo) Create(ctx context.Context, l *model.Listing) error {
	f.nextID++
	l.ID = f.nextID + 1000
	if f.listings == nil {
		f.listings = make(map[uint64]*model.Listing)
	}
	f.listings[l.ID] = l
	return nil
}

func (f *fakeListingRepo) FindByID(ctx context.Context, id uint64) (*model.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return l, nil
}

func (f *fakeListingRepo) List(ctx context.Context, limit, offset int) ([]model.Listing, int64, error) {
	f.lastLimit = limit
	return nil, 0, nil
}

func (f *fakeListingRepo) ListBySeller(ctx context.Context, sellerUID string) ([]model.Listing, error) {
	return nil, nil
}

func (f *fakeListingRepo) UpdateThumbURL(ctx context.Context, id uint64, url string) error {
	if f.thumbs == nil {
		f.thumbs = make(map[uint64]string)
	}
	f.thumbs[id] = url
	return nil
}

func (f *fakeListingRepo) SetDB(db *gorm.DB) {}

type fakeDirectory struct {
	known map[string]MemberDisplay
}

func (f *fakeDirectory) Display(ctx context.Context, uid string) (MemberDisplay, bool) {
	if d, ok := f.known[uid]; ok {
		return d, true
	}
	return MemberDisplay{UID: uid, Nickname: WithdrawnNickname}, false
}

func (f *fakeDirectory) DisplayAll(ctx context.Context, uids []string) map[string]MemberDisplay {
	out := make(map[string]MemberDisplay)
	for _, uid := range uids {
		out[uid], _ = f.Display(ctx, uid)
	}
	return out
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []MessageView
}

func (b *recordingBroadcaster) Publish(roomID uint64, msg MessageView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func newTestService() (ChatService, *fakeChatRepo, *recordingBroadcaster) {
	repo := newFakeChatRepo()
	listings := &fakeListingRepo{listings: map[uint64]*model.Listing{
		42: {ID: 42, SellerUID: "seller", Title: "Old bike", Price: 30000},
	}}
	dir := &fakeDirectory{known: map[string]MemberDisplay{
		"seller": {UID: "seller", Nickname: "Sun-woo"},
		"buyer":  {UID: "buyer", Nickname: "Minji"},
	}}
	bc := &recordingBroadcaster{}
	return NewChatService(repo, listings, dir, nil, bc), repo, bc
}

func TestOpenOrGetRoomIdempotent(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	first, err := svc.OpenOrGetRoom(ctx, 42, "buyer")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := svc.OpenOrGetRoom(ctx, 42, "buyer")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if first.RoomID != second.RoomID {
		t.Fatalf("room ids differ: %d vs %d", first.RoomID, second.RoomID)
	}
	if repo.created != 1 {
		t.Fatalf("created %d rooms, want 1", repo.created)
	}
	if first.BuyerUID != "buyer" || first.SellerUID != "seller" {
		t.Fatalf("unexpected pair: %+v", first)
	}
	if first.ListingID == nil || *first.ListingID != 42 {
		t.Fatalf("unexpected listing id: %+v", first.ListingID)
	}
}

func TestOpenOrGetRoomConcurrent(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	const n = 16
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.OpenOrGetRoom(ctx, 42, "buyer")
			if err != nil {
				t.Errorf("open %d: %v", i, err)
				return
			}
			ids[i] = res.RoomID
		}(i)
	}
	wg.Wait()

	if repo.created != 1 {
		t.Fatalf("created %d rooms, want exactly 1", repo.created)
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got room %d, caller 0 got %d", i, ids[i], ids[0])
		}
	}
}

func TestOpenOrGetRoomErrors(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.OpenOrGetRoom(ctx, 99, "buyer"); err != ErrNotFound {
		t.Fatalf("missing listing: got %v, want ErrNotFound", err)
	}
	if _, err := svc.OpenOrGetRoom(ctx, 42, "seller"); err != ErrSelfChat {
		t.Fatalf("self chat: got %v, want ErrSelfChat", err)
	}
}

func TestOpenDirectRoom(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	res, err := svc.OpenDirectRoom(ctx, "buyer", "seller")
	if err != nil {
		t.Fatalf("open direct: %v", err)
	}
	if res.ListingID != nil {
		t.Fatalf("direct room carries listing id %v", res.ListingID)
	}
	again, err := svc.OpenDirectRoom(ctx, "seller", "buyer")
	if err != nil {
		t.Fatalf("reopen from other side: %v", err)
	}
	if res.RoomID != again.RoomID {
		t.Fatalf("pair order changed the room: %d vs %d", res.RoomID, again.RoomID)
	}
	if repo.created != 1 {
		t.Fatalf("created %d rooms, want 1", repo.created)
	}
	if _, err := svc.OpenDirectRoom(ctx, "buyer", "buyer"); err != ErrSelfChat {
		t.Fatalf("self direct: got %v, want ErrSelfChat", err)
	}
	if _, err := svc.OpenDirectRoom(ctx, "buyer", "ghost"); err != ErrNotFound {
		t.Fatalf("unknown member: got %v, want ErrNotFound", err)
	}
}

func TestSendMessage(t *testing.T) {
	svc, repo, bc := newTestService()
	ctx := context.Background()

	room, err := svc.OpenOrGetRoom(ctx, 42, "buyer")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	msg, err := svc.SendMessage(ctx, room.RoomID, "buyer", "  hi  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Content != "hi" {
		t.Fatalf("content not trimmed: %q", msg.Content)
	}
	if msg.SenderNickName != "Minji" {
		t.Fatalf("sender not enriched: %q", msg.SenderNickName)
	}
	p, _ := repo.FindParticipant(ctx, room.RoomID, "buyer")
	if p == nil || p.LastReadMessageID == nil || *p.LastReadMessageID != msg.ID {
		t.Fatalf("sender read position not advanced: %+v", p)
	}
	if bc.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", bc.count())
	}
}

func TestSendMessageRejections(t *testing.T) {
	svc, repo, bc := newTestService()
	ctx := context.Background()

	room, _ := svc.OpenOrGetRoom(ctx, 42, "buyer")

	tests := []struct {
		name    string
		roomID  uint64
		sender  string
		content string
		wantErr error
	}{
		{"empty", room.RoomID, "buyer", "", ErrEmptyContent},
		{"whitespace", room.RoomID, "buyer", "   \n\t", ErrEmptyContent},
		{"missing room", room.RoomID + 100, "buyer", "hi", ErrNotFound},
		{"outsider", room.RoomID, "stranger", "hi", ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SendMessage(ctx, tt.roomID, tt.sender, tt.content); err != tt.wantErr {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(repo.msgs) != 0 {
		t.Fatalf("%d messages persisted, want 0", len(repo.msgs))
	}
	if bc.count() != 0 {
		t.Fatalf("broadcasts = %d, want 0", bc.count())
	}
}

func TestMarkReadMonotonic(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	room, _ := svc.OpenOrGetRoom(ctx, 42, "buyer")
	for i := 0; i < 5; i++ {
		if _, err := svc.SendMessage(ctx, room.RoomID, "seller", "m"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	five := uint64(5)
	three := uint64(3)
	if err := svc.MarkRead(ctx, room.RoomID, "buyer", &five); err != nil {
		t.Fatalf("mark 5: %v", err)
	}
	if err := svc.MarkRead(ctx, room.RoomID, "buyer", &three); err != nil {
		t.Fatalf("mark 3: %v", err)
	}
	p, _ := repo.FindParticipant(ctx, room.RoomID, "buyer")
	if p.LastReadMessageID == nil || *p.LastReadMessageID != 5 {
		t.Fatalf("position regressed: %+v", p.LastReadMessageID)
	}
	if err := svc.MarkRead(ctx, room.RoomID, "buyer", nil); err != nil {
		t.Fatalf("nil mark is a no-op, got %v", err)
	}
}

func TestUnreadCount(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	room, _ := svc.OpenOrGetRoom(ctx, 42, "buyer")
	const k = 4
	var lastID uint64
	for i := 0; i < k; i++ {
		msg, err := svc.SendMessage(ctx, room.RoomID, "seller", "ping")
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		lastID = msg.ID
	}

	rooms, err := svc.ListMyRooms(ctx, "buyer")
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].UnreadCount != k {
		t.Fatalf("unread = %+v, want %d", rooms, k)
	}

	if err := svc.MarkRead(ctx, room.RoomID, "buyer", &lastID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	rooms, _ = svc.ListMyRooms(ctx, "buyer")
	if rooms[0].UnreadCount != 0 {
		t.Fatalf("unread after mark = %d, want 0", rooms[0].UnreadCount)
	}

	// sender's own messages never count against them
	if got, _ := repo.CountUnread(ctx, room.RoomID, "seller"); got != 0 {
		t.Fatalf("sender unread = %d, want 0", got)
	}
}

func TestListMessagesCursors(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	room, _ := svc.OpenOrGetRoom(ctx, 42, "buyer")
	for i := 0; i < 10; i++ {
		sender := "buyer"
		if i%2 == 1 {
			sender = "seller"
		}
		if _, err := svc.SendMessage(ctx, room.RoomID, sender, "m"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	ids := func(msgs []MessageView) []uint64 {
		out := make([]uint64, len(msgs))
		for i, m := range msgs {
			out[i] = m.ID
		}
		return out
	}
	equal := func(a, b []uint64) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}

	four := uint64(4)
	eight := uint64(8)

	after, err := svc.ListMessages(ctx, room.RoomID, "buyer", nil, &four, 2)
	if err != nil {
		t.Fatalf("afterId: %v", err)
	}
	// afterId is a catch-up read: ascending and unbounded by limit
	if !equal(ids(after), []uint64{5, 6, 7, 8, 9, 10}) {
		t.Fatalf("afterId=4 returned %v", ids(after))
	}

	before, err := svc.ListMessages(ctx, room.RoomID, "buyer", &eight, nil, 3)
	if err != nil {
		t.Fatalf("beforeId: %v", err)
	}
	if !equal(ids(before), []uint64{5, 6, 7}) {
		t.Fatalf("beforeId=8 limit=3 returned %v", ids(before))
	}

	latest, err := svc.ListMessages(ctx, room.RoomID, "buyer", nil, nil, 3)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !equal(ids(latest), []uint64{8, 9, 10}) {
		t.Fatalf("latest limit=3 returned %v", ids(latest))
	}

	// afterId wins when both cursors are supplied
	both, err := svc.ListMessages(ctx, room.RoomID, "buyer", &eight, &four, 3)
	if err != nil {
		t.Fatalf("both cursors: %v", err)
	}
	if !equal(ids(both), ids(after)) {
		t.Fatalf("both cursors returned %v, want afterId branch %v", ids(both), ids(after))
	}

	// out-of-range limit falls back to the default window of 50
	all, err := svc.ListMessages(ctx, room.RoomID, "buyer", nil, nil, 1000)
	if err != nil {
		t.Fatalf("clamped: %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("clamped limit returned %d messages, want all 10", len(all))
	}

	if _, err := svc.ListMessages(ctx, room.RoomID, "stranger", nil, nil, 0); err != ErrForbidden {
		t.Fatalf("outsider read: got %v, want ErrForbidden", err)
	}
}

func TestMessageOrderMatchesTimestamps(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	room, _ := svc.OpenOrGetRoom(ctx, 42, "buyer")
	for i := 0; i < 6; i++ {
		if _, err := svc.SendMessage(ctx, room.RoomID, "buyer", "m"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	msgs, err := svc.ListMessages(ctx, room.RoomID, "buyer", nil, nil, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].ID >= msgs[i].ID {
			t.Fatalf("ids not strictly increasing at %d: %v", i, msgs)
		}
		if msgs[i].InsertedAt.Before(msgs[i-1].InsertedAt) {
			t.Fatalf("timestamp order disagrees with id order at %d", i)
		}
	}
}

func TestListMyRoomsShape(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	withListing, _ := svc.OpenOrGetRoom(ctx, 42, "buyer")
	if _, err := svc.SendMessage(ctx, withListing.RoomID, "seller", "still available?"); err != nil {
		t.Fatalf("send: %v", err)
	}
	direct, _ := svc.OpenDirectRoom(ctx, "buyer", "seller")

	rooms, err := svc.ListMyRooms(ctx, "buyer")
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("got %d rooms, want 2", len(rooms))
	}
	// the room with a message sorts first even though the message-less
	// room was created after that message
	if rooms[0].RoomID != withListing.RoomID || rooms[1].RoomID != direct.RoomID {
		t.Fatalf("unexpected order: %d, %d", rooms[0].RoomID, rooms[1].RoomID)
	}
	first := rooms[0]
	if first.ListingID == nil || *first.ListingID != 42 {
		t.Fatalf("listing id missing: %+v", first.ListingID)
	}
	if first.OtherUID != "seller" || first.OtherNickName != "Sun-woo" {
		t.Fatalf("counterpart not enriched: %+v", first)
	}
	if first.LastMessage == nil || first.LastMessage.Content != "still available?" {
		t.Fatalf("snippet missing: %+v", first.LastMessage)
	}
	if rooms[1].ListingID != nil {
		t.Fatalf("direct room carries listing id: %+v", rooms[1].ListingID)
	}
	if rooms[1].LastMessage != nil {
		t.Fatalf("empty room carries snippet: %+v", rooms[1].LastMessage)
	}
}

func TestEnrichmentDegradesToWithdrawn(t *testing.T) {
	repo := newFakeChatRepo()
	listings := &fakeListingRepo{listings: map[uint64]*model.Listing{
		42: {ID: 42, SellerUID: "gone", Title: "Old bike"},
	}}
	dir := &fakeDirectory{known: map[string]MemberDisplay{}}
	svc := NewChatService(repo, listings, dir, nil, nil)
	ctx := context.Background()

	room, err := svc.OpenOrGetRoom(ctx, 42, "buyer")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	msg, err := svc.SendMessage(ctx, room.RoomID, "gone", "bye")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.SenderNickName != WithdrawnNickname {
		t.Fatalf("sender nickname = %q, want withdrawn fallback", msg.SenderNickName)
	}
	rooms, _ := svc.ListMyRooms(ctx, "buyer")
	if rooms[0].OtherNickName != WithdrawnNickname {
		t.Fatalf("counterpart nickname = %q, want withdrawn fallback", rooms[0].OtherNickName)
	}
}

func TestDeleteRoom(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	room, _ := svc.OpenOrGetRoom(ctx, 42, "buyer")
	if _, err := svc.SendMessage(ctx, room.RoomID, "buyer", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.DeleteRoom(ctx, room.RoomID, "stranger"); err != ErrForbidden {
		t.Fatalf("outsider delete: got %v, want ErrForbidden", err)
	}
	if err := svc.DeleteRoom(ctx, room.RoomID, "buyer"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.rooms) != 0 || len(repo.msgs) != 0 || len(repo.parts) != 0 {
		t.Fatalf("cascade incomplete: rooms=%d msgs=%d parts=%d", len(repo.rooms), len(repo.msgs), len(repo.parts))
	}
	if err := svc.DeleteRoom(ctx, room.RoomID, "buyer"); err != ErrNotFound {
		t.Fatalf("delete again: got %v, want ErrNotFound", err)
	}
	// the tuple can be opened fresh after the hard delete
	again, err := svc.OpenOrGetRoom(ctx, 42, "buyer")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again.RoomID == room.RoomID {
		t.Fatalf("hard-deleted room id reused by lookup")
	}
}

func TestRoomDetail(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	room, _ := svc.OpenOrGetRoom(ctx, 42, "buyer")
	var lastID uint64
	for i := 0; i < 2; i++ {
		msg, err := svc.SendMessage(ctx, room.RoomID, "seller", "ping")
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		lastID = msg.ID
	}

	detail, err := svc.RoomDetail(ctx, room.RoomID, "buyer")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Listing == nil || detail.Listing.Title != "Old bike" {
		t.Fatalf("listing missing: %+v", detail.Listing)
	}
	if detail.SellerUID != "seller" {
		t.Fatalf("seller = %q", detail.SellerUID)
	}
	if len(detail.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(detail.Members))
	}
	if detail.UnreadCount != 2 {
		t.Fatalf("unread = %d, want 2", detail.UnreadCount)
	}
	for _, m := range detail.Members {
		switch m.UID {
		case "seller":
			// sending ratchets the sender's own position
			if m.LastReadMessageID == nil || *m.LastReadMessageID != lastID {
				t.Fatalf("seller read position = %v, want %d", m.LastReadMessageID, lastID)
			}
		case "buyer":
			if m.LastReadMessageID != nil {
				t.Fatalf("buyer read position = %v, want unset", m.LastReadMessageID)
			}
		default:
			t.Fatalf("unexpected member %q", m.UID)
		}
	}
	if _, err := svc.RoomDetail(ctx, room.RoomID, "stranger"); err != ErrForbidden {
		t.Fatalf("outsider detail: got %v, want ErrForbidden", err)
	}
}
