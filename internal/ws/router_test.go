package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rahulrsolguruz/chat-app-api/internal/models"
	"github.com/rahulrsolguruz/chat-app-api/internal/repo"
)

// fakeStore is an in-memory repo.Store so the dispatch table can be
// exercised without a database or a live socket.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]*models.User
	messages      map[string]*models.Message
	groupMessages map[string]*models.GroupMessage
	groups        map[string]*models.Group
	memberships   []models.GroupMember
	activities    []models.UserActivity
	contacts      map[string][]string
	presence      map[string]string

	failWrites bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]*models.User),
		messages:      make(map[string]*models.Message),
		groupMessages: make(map[string]*models.GroupMessage),
		groups:        make(map[string]*models.Group),
		contacts:      make(map[string][]string),
		presence:      make(map[string]string),
	}
}

var errFakeWrite = errors.New("fake write failure")

func (s *fakeStore) addUser(role string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.users[id] = &models.User{ID: id, Username: "u-" + id[:8], Role: role}
	return id
}

func (s *fakeStore) FindUser(id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) UpdateUserPresence(id, status string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	s.presence[id] = status
	return nil
}

func (s *fakeStore) ContactIDs(userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts[userID], nil
}

func (s *fakeStore) InsertMessage(m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now()
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *fakeStore) FindMessage(id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.DeletedAt != nil {
		return nil, repo.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) UpdateMessageStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	m, ok := s.messages[id]
	if !ok {
		return repo.ErrNotFound
	}
	m.Status = status
	return nil
}

func (s *fakeStore) SoftDeleteMessage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if m, ok := s.messages[id]; ok {
		m.DeletedAt = &now
	}
	return nil
}

func (s *fakeStore) InsertGroup(g *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = time.Now()
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *fakeStore) FindGroup(id string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok || g.DeletedAt != nil {
		return nil, repo.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *fakeStore) UpdateGroup(id, name, pictureURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	if g, ok := s.groups[id]; ok {
		g.Name = name
		g.PictureURL = pictureURL
	}
	return nil
}

func (s *fakeStore) SoftDeleteGroup(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	now := time.Now()
	if g, ok := s.groups[id]; ok {
		g.DeletedAt = &now
	}
	return nil
}

func (s *fakeStore) InsertMembership(m *models.GroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	s.memberships = append(s.memberships, *m)
	return nil
}

func (s *fakeStore) DeleteMembership(groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	out := s.memberships[:0]
	for _, m := range s.memberships {
		if !(m.GroupID == groupID && m.UserID == userID) {
			out = append(out, m)
		}
	}
	s.memberships = out
	return nil
}

func (s *fakeStore) ListMemberships() ([]models.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GroupMember(nil), s.memberships...), nil
}

func (s *fakeStore) InsertGroupMessage(m *models.GroupMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now()
	cp := *m
	s.groupMessages[m.ID] = &cp
	return nil
}

func (s *fakeStore) FindGroupMessage(id string) (*models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.groupMessages[id]
	if !ok || m.DeletedAt != nil {
		return nil, repo.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) SoftDeleteGroupMessage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errFakeWrite
	}
	now := time.Now()
	if m, ok := s.groupMessages[id]; ok {
		m.DeletedAt = &now
	}
	return nil
}

func (s *fakeStore) AppendActivity(a *models.UserActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, *a)
	return nil
}

func newTestRouter(t *testing.T, includeSender bool) (*Router, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	reg := NewRegistry()
	rooms := NewRooms()
	tracker := NewTracker(reg, store)
	return NewRouter(reg, rooms, tracker, store, includeSender), store
}

func newTestClient(userID string) *Client {
	return &Client{send: make(chan []byte, 64), userID: userID, username: "u", role: models.RoleMember}
}

func dispatch(t *testing.T, r *Router, c *Client, evtType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(Frame{Type: evtType, Payload: raw})
	require.NoError(t, err)
	r.Dispatch(c, frame)
}

func recvEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case b := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(b, &env))
		return env
	default:
		t.Fatal("expected an outbound envelope, send buffer is empty")
		return Envelope{}
	}
}

func requireNoEnvelope(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("expected no outbound event, got %s", b)
	default:
	}
}

// setupGroup creates a group owned by admin and adds the given members.
func setupGroup(t *testing.T, r *Router, store *fakeStore, adminID string, memberIDs ...string) string {
	t.Helper()
	adminConn := newTestClient(adminID)
	dispatch(t, r, adminConn, EventCreateGroup, createGroupPayload{GroupName: "dev-team"})
	env := recvEnvelope(t, adminConn)
	require.True(t, env.Success, "createGroup failed: %s", env.Message)
	data := env.Data.(map[string]interface{})
	groupID := data["group_id"].(string)
	for _, id := range memberIDs {
		dispatch(t, r, adminConn, EventAddMember, memberPayload{GroupID: groupID, MemberID: id})
		env = recvEnvelope(t, adminConn)
		require.True(t, env.Success, "addMember failed: %s", env.Message)
	}
	return groupID
}

func TestCreateGroup_RoundTrip(t *testing.T) {
	r, store := newTestRouter(t, true)
	creator := store.addUser(models.RoleMember)
	c := newTestClient(creator)

	dispatch(t, r, c, EventCreateGroup, createGroupPayload{GroupName: "weekend-plans"})

	env := recvEnvelope(t, c)
	require.True(t, env.Success)
	groupID := env.Data.(map[string]interface{})["group_id"].(string)

	members, err := r.rooms.MembersOf(GroupKey(groupID))
	require.NoError(t, err)
	require.Equal(t, []string{creator}, members)

	role, ok := r.rooms.RoleOf(GroupKey(groupID), creator)
	require.True(t, ok)
	require.Equal(t, models.RoleAdmin, role)

	require.Len(t, store.memberships, 1)
	require.Equal(t, models.RoleAdmin, store.memberships[0].Role)
}

func TestSendGroupMessage_NonMemberUnauthorized(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	outsider := store.addUser(models.RoleMember)
	member := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, member)

	memberConn := newTestClient(member)
	r.reg.Register(member, memberConn)

	outsiderConn := newTestClient(outsider)
	dispatch(t, r, outsiderConn, EventSendGroupMessage, sendGroupMessagePayload{GroupID: groupID, Content: "let me in"})

	env := recvEnvelope(t, outsiderConn)
	require.False(t, env.Success)
	require.Equal(t, "unauthorized", env.Message)
	require.Empty(t, store.groupMessages, "no message may be persisted")
	requireNoEnvelope(t, memberConn)
}

func TestSendGroupMessage_FanoutIncludesAllMembers(t *testing.T) {
	// Default policy: broadcast includes the sender's own connections.
	// Sender A has no connections here, so exactly the 3 online members
	// each receive one receiveGroupMessage event.
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	b := store.addUser(models.RoleMember)
	c := store.addUser(models.RoleMember)
	sender := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, b, c, sender)

	conns := map[string]*Client{}
	for _, id := range []string{admin, b, c} {
		cl := newTestClient(id)
		r.reg.Register(id, cl)
		conns[id] = cl
	}

	// the sender's frame arrives on a connection that is not registered,
	// so despite the include-sender policy exactly 3 events go out
	senderConn := newTestClient(sender)
	dispatch(t, r, senderConn, EventSendGroupMessage, sendGroupMessagePayload{GroupID: groupID, Content: "hello all"})

	ack := recvEnvelope(t, senderConn)
	require.True(t, ack.Success)
	requireNoEnvelope(t, senderConn)

	require.Len(t, store.groupMessages, 1)
	for _, m := range store.groupMessages {
		require.Equal(t, models.MessageSent, m.Status)
		require.Equal(t, "hello all", m.Content)
	}

	for id, cl := range conns {
		env := recvEnvelope(t, cl)
		require.Equal(t, EventReceiveGroupMessage, env.Type, "member %s", id)
		requireNoEnvelope(t, cl)
	}
}

func TestSendGroupMessage_ExcludeSenderPolicy(t *testing.T) {
	r, store := newTestRouter(t, false)
	admin := store.addUser(models.RoleMember)
	b := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, b)

	adminConn := newTestClient(admin)
	r.reg.Register(admin, adminConn)
	senderConn := newTestClient(b)
	r.reg.Register(b, senderConn)

	dispatch(t, r, senderConn, EventSendGroupMessage, sendGroupMessagePayload{GroupID: groupID, Content: "hi"})

	ack := recvEnvelope(t, senderConn)
	require.True(t, ack.Success)
	require.Equal(t, EventSendGroupMessage, ack.Type)
	// with the exclude policy the sender sees only the ack
	requireNoEnvelope(t, senderConn)

	env := recvEnvelope(t, adminConn)
	require.Equal(t, EventReceiveGroupMessage, env.Type)
}

func TestSendMessage_PersistsAndFansOutMultiDevice(t *testing.T) {
	r, store := newTestRouter(t, true)
	alice := store.addUser(models.RoleMember)
	bob := store.addUser(models.RoleMember)

	bob1 := newTestClient(bob)
	bob2 := newTestClient(bob)
	r.reg.Register(bob, bob1)
	r.reg.Register(bob, bob2)

	sender := newTestClient(alice)
	dispatch(t, r, sender, EventSendMessage, sendMessagePayload{ReceiverID: bob, Content: "hey"})

	ack := recvEnvelope(t, sender)
	require.True(t, ack.Success)

	require.Len(t, store.messages, 1)
	for _, m := range store.messages {
		require.Equal(t, models.MessageSent, m.Status)
		require.Equal(t, models.TypeText, m.Type)
	}

	for _, cl := range []*Client{bob1, bob2} {
		env := recvEnvelope(t, cl)
		require.Equal(t, EventReceiveMessage, env.Type)
	}

	// one-to-one room is materialized lazily on first message
	require.True(t, r.rooms.IsMember(DirectKey(alice, bob), alice))
	require.True(t, r.rooms.IsMember(DirectKey(bob, alice), bob))
}

func TestSendMessage_UnknownReceiver(t *testing.T) {
	r, store := newTestRouter(t, true)
	alice := store.addUser(models.RoleMember)
	sender := newTestClient(alice)

	dispatch(t, r, sender, EventSendMessage, sendMessagePayload{ReceiverID: uuid.NewString(), Content: "hello?"})

	env := recvEnvelope(t, sender)
	require.False(t, env.Success)
	require.Equal(t, "not found", env.Message)
	require.Empty(t, store.messages)
}

func TestSendMessage_StorageFailureNoFanout(t *testing.T) {
	r, store := newTestRouter(t, true)
	alice := store.addUser(models.RoleMember)
	bob := store.addUser(models.RoleMember)
	bobConn := newTestClient(bob)
	r.reg.Register(bob, bobConn)

	store.failWrites = true
	sender := newTestClient(alice)
	dispatch(t, r, sender, EventSendMessage, sendMessagePayload{ReceiverID: bob, Content: "lost"})

	env := recvEnvelope(t, sender)
	require.False(t, env.Success)
	require.Equal(t, "storage failure", env.Message)
	requireNoEnvelope(t, bobConn)
}

func TestStatusTransitions_Monotone(t *testing.T) {
	r, store := newTestRouter(t, true)
	alice := store.addUser(models.RoleMember)
	bob := store.addUser(models.RoleMember)

	sender := newTestClient(alice)
	dispatch(t, r, sender, EventSendMessage, sendMessagePayload{ReceiverID: bob, Content: "receipt me"})
	recvEnvelope(t, sender)

	var msgID string
	for id := range store.messages {
		msgID = id
	}

	receiver := newTestClient(bob)

	dispatch(t, r, receiver, EventMessageDelivered, statusPayload{MessageID: msgID})
	env := recvEnvelope(t, receiver)
	require.True(t, env.Success)
	require.Equal(t, models.MessageDelivered, store.messages[msgID].Status)

	dispatch(t, r, receiver, EventMessageRead, statusPayload{MessageID: msgID})
	env = recvEnvelope(t, receiver)
	require.True(t, env.Success)
	require.Equal(t, models.MessageRead, store.messages[msgID].Status)

	// read -> delivered is a backward move
	dispatch(t, r, receiver, EventMessageDelivered, statusPayload{MessageID: msgID})
	env = recvEnvelope(t, receiver)
	require.False(t, env.Success)
	require.Equal(t, "invalid status transition", env.Message)
	require.Equal(t, models.MessageRead, store.messages[msgID].Status)
}

func TestStatusTransitions_OnlyReceiverMayAdvance(t *testing.T) {
	r, store := newTestRouter(t, true)
	alice := store.addUser(models.RoleMember)
	bob := store.addUser(models.RoleMember)
	mallory := store.addUser(models.RoleMember)

	sender := newTestClient(alice)
	dispatch(t, r, sender, EventSendMessage, sendMessagePayload{ReceiverID: bob, Content: "private"})
	recvEnvelope(t, sender)

	var msgID string
	for id := range store.messages {
		msgID = id
	}

	intruder := newTestClient(mallory)
	dispatch(t, r, intruder, EventMessageRead, statusPayload{MessageID: msgID})
	env := recvEnvelope(t, intruder)
	require.False(t, env.Success)
	require.Equal(t, "unauthorized", env.Message)
	require.Equal(t, models.MessageSent, store.messages[msgID].Status)
}

func TestRemoveMember_NotMemberLeavesRoomUnchanged(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	member := store.addUser(models.RoleMember)
	stranger := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, member)

	adminConn := newTestClient(admin)
	dispatch(t, r, adminConn, EventRemoveMember, memberPayload{GroupID: groupID, MemberID: stranger})

	env := recvEnvelope(t, adminConn)
	require.False(t, env.Success)
	require.Equal(t, "not a member", env.Message)

	members, err := r.rooms.MembersOf(GroupKey(groupID))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{admin, member}, members)
}

func TestAddRemoveMember_LifecycleAndNotices(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	joiner := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin)
	key := GroupKey(groupID)

	joinerConn := newTestClient(joiner)
	r.reg.Register(joiner, joinerConn)

	adminConn := newTestClient(admin)
	dispatch(t, r, adminConn, EventAddMember, memberPayload{GroupID: groupID, MemberID: joiner})
	env := recvEnvelope(t, adminConn)
	require.True(t, env.Success)
	require.True(t, r.rooms.IsMember(key, joiner))

	// the new member is part of the post-add broadcast set
	notice := recvEnvelope(t, joinerConn)
	require.Equal(t, EventMemberAdded, notice.Type)

	dispatch(t, r, adminConn, EventRemoveMember, memberPayload{GroupID: groupID, MemberID: joiner})
	env = recvEnvelope(t, adminConn)
	require.True(t, env.Success)
	require.False(t, r.rooms.IsMember(key, joiner))

	// removed member gets a direct notice
	direct := recvEnvelope(t, joinerConn)
	require.Equal(t, EventRemovedFromGroup, direct.Type)

	// duplicate add must fail after re-adding once
	dispatch(t, r, adminConn, EventAddMember, memberPayload{GroupID: groupID, MemberID: joiner})
	env = recvEnvelope(t, adminConn)
	require.True(t, env.Success)
	dispatch(t, r, adminConn, EventAddMember, memberPayload{GroupID: groupID, MemberID: joiner})
	env = recvEnvelope(t, adminConn)
	require.False(t, env.Success)
	require.Equal(t, "already a member", env.Message)
}

func TestAddMember_RequiresAdminRole(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	member := store.addUser(models.RoleMember)
	other := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, member)

	memberConn := newTestClient(member)
	dispatch(t, r, memberConn, EventAddMember, memberPayload{GroupID: groupID, MemberID: other})

	env := recvEnvelope(t, memberConn)
	require.False(t, env.Success)
	require.Equal(t, "unauthorized", env.Message)
	require.False(t, r.rooms.IsMember(GroupKey(groupID), other))
}

func TestDeleteGroupMessage_Tombstone(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	member := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, member)

	memberConn := newTestClient(member)
	dispatch(t, r, memberConn, EventSendGroupMessage, sendGroupMessagePayload{GroupID: groupID, Content: "oops"})
	recvEnvelope(t, memberConn)

	var msgID string
	for id := range store.groupMessages {
		msgID = id
	}

	// the original sender may delete their own message
	dispatch(t, r, memberConn, EventDeleteGroupMsg, deleteGroupMessagePayload{GroupID: groupID, MessageID: msgID})
	env := recvEnvelope(t, memberConn)
	require.True(t, env.Success)
	require.NotNil(t, store.groupMessages[msgID].DeletedAt, "soft delete, not physical removal")

	// deleting an already-tombstoned message reports not found
	dispatch(t, r, memberConn, EventDeleteGroupMsg, deleteGroupMessagePayload{GroupID: groupID, MessageID: msgID})
	env = recvEnvelope(t, memberConn)
	require.False(t, env.Success)
	require.Equal(t, "not found", env.Message)
}

func TestDeleteGroupMessage_SenderOrAdminOnly(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	author := store.addUser(models.RoleMember)
	other := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, author, other)

	authorConn := newTestClient(author)
	dispatch(t, r, authorConn, EventSendGroupMessage, sendGroupMessagePayload{GroupID: groupID, Content: "mine"})
	recvEnvelope(t, authorConn)

	var msgID string
	for id := range store.groupMessages {
		msgID = id
	}

	otherConn := newTestClient(other)
	dispatch(t, r, otherConn, EventDeleteGroupMsg, deleteGroupMessagePayload{GroupID: groupID, MessageID: msgID})
	env := recvEnvelope(t, otherConn)
	require.False(t, env.Success)
	require.Equal(t, "unauthorized", env.Message)
	require.Nil(t, store.groupMessages[msgID].DeletedAt)

	adminConn := newTestClient(admin)
	dispatch(t, r, adminConn, EventDeleteGroupMsg, deleteGroupMessagePayload{GroupID: groupID, MessageID: msgID})
	env = recvEnvelope(t, adminConn)
	require.True(t, env.Success)
	require.NotNil(t, store.groupMessages[msgID].DeletedAt)
}

func TestJoinGroup_NonMemberGetsErrorOnlyToRequester(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	outsider := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin)

	adminConn := newTestClient(admin)
	r.reg.Register(admin, adminConn)

	outsiderConn := newTestClient(outsider)
	dispatch(t, r, outsiderConn, EventJoinGroup, groupPayload{GroupID: groupID})

	env := recvEnvelope(t, outsiderConn)
	require.False(t, env.Success)
	requireNoEnvelope(t, adminConn)
}

func TestTyping_RelaysWithoutPersistence(t *testing.T) {
	r, store := newTestRouter(t, true)
	alice := store.addUser(models.RoleMember)
	bob := store.addUser(models.RoleMember)

	bobConn := newTestClient(bob)
	r.reg.Register(bob, bobConn)

	sender := newTestClient(alice)
	dispatch(t, r, sender, EventTyping, typingPayload{ReceiverID: bob})

	env := recvEnvelope(t, bobConn)
	require.Equal(t, EventTyping, env.Type)
	require.Equal(t, alice, env.Data.(map[string]interface{})["sender_id"])
	require.Empty(t, store.messages)
	// typing is fire-and-forget: no ack to the sender either
	requireNoEnvelope(t, sender)
}

func TestTyping_GroupExcludesSenderAndNonMembersDropped(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	member := store.addUser(models.RoleMember)
	outsider := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, member)

	adminConn := newTestClient(admin)
	r.reg.Register(admin, adminConn)
	memberConn := newTestClient(member)
	r.reg.Register(member, memberConn)

	dispatch(t, r, memberConn, EventStopTyping, typingPayload{GroupID: groupID})
	env := recvEnvelope(t, adminConn)
	require.Equal(t, EventStopTyping, env.Type)
	requireNoEnvelope(t, memberConn)

	// non-member typing into a group is silently dropped
	outsiderConn := newTestClient(outsider)
	dispatch(t, r, outsiderConn, EventTyping, typingPayload{GroupID: groupID})
	requireNoEnvelope(t, adminConn)
	requireNoEnvelope(t, outsiderConn)
}

func TestDispatch_MalformedFrames(t *testing.T) {
	r, store := newTestRouter(t, true)
	alice := store.addUser(models.RoleMember)
	c := newTestClient(alice)

	r.Dispatch(c, []byte("not json"))
	env := recvEnvelope(t, c)
	require.False(t, env.Success)
	require.Equal(t, EventError, env.Type)

	r.Dispatch(c, []byte(`{"type":"noSuchEvent","payload":{}}`))
	env = recvEnvelope(t, c)
	require.False(t, env.Success)
	require.Equal(t, "unknown event type", env.Message)

	// valid frame, payload missing required fields
	dispatch(t, r, c, EventSendMessage, map[string]string{"message_content": "no receiver"})
	env = recvEnvelope(t, c)
	require.False(t, env.Success)
	require.Equal(t, "malformed payload", env.Message)
}

func TestActivityLog_AppendedOnMutations(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	member := store.addUser(models.RoleMember)
	groupID := setupGroup(t, r, store, admin, member)
	_ = groupID

	var types []string
	for _, a := range store.activities {
		types = append(types, a.ActivityType)
	}
	require.Contains(t, types, models.ActivityGroupCreated)
	require.Contains(t, types, models.ActivityMemberAdded)
}

func TestAdminNotifications_GoToAdminsRoom(t *testing.T) {
	r, store := newTestRouter(t, true)
	adminUser := store.addUser(models.RoleAdmin)
	creator := store.addUser(models.RoleMember)

	adminConn := newTestClient(adminUser)
	adminConn.role = models.RoleAdmin
	r.reg.Register(adminUser, adminConn)
	require.NoError(t, r.rooms.AddMember(AdminsRoom, adminUser, models.RoleAdmin))

	creatorConn := newTestClient(creator)
	dispatch(t, r, creatorConn, EventCreateGroup, createGroupPayload{GroupName: "watched"})
	env := recvEnvelope(t, creatorConn)
	require.True(t, env.Success)

	notice := recvEnvelope(t, adminConn)
	require.Equal(t, EventGroupCreated, notice.Type)
}

func TestRouter_ConcurrentGroupSends(t *testing.T) {
	r, store := newTestRouter(t, true)
	admin := store.addUser(models.RoleMember)
	members := make([]string, 4)
	for i := range members {
		members[i] = store.addUser(models.RoleMember)
	}
	groupID := setupGroup(t, r, store, admin, members...)

	var wg sync.WaitGroup
	for i, id := range members {
		wg.Add(1)
		go func(n int, uid string) {
			defer wg.Done()
			c := newTestClient(uid)
			payload := fmt.Sprintf(`{"group_id":%q,"message_content":"msg-%d"}`, groupID, n)
			frame := fmt.Sprintf(`{"type":%q,"payload":%s}`, EventSendGroupMessage, payload)
			r.Dispatch(c, []byte(frame))
		}(i, id)
	}
	wg.Wait()

	require.Len(t, store.groupMessages, len(members))
}
