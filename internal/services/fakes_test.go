package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/messagely/apiserver/internal/credential"
	"github.com/messagely/apiserver/internal/storage"
	"github.com/messagely/apiserver/internal/store"
	"github.com/messagely/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]store.UserRecord
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]store.UserRecord)}
}

func (m *memUsers) Create(_ context.Context, rec store.UserRecord) (store.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[rec.Username]; ok {
		return store.UserRecord{}, store.ErrConflict
	}
	m.users[rec.Username] = rec
	return rec, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (store.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[username]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *memUsers) Exists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[username]
	return ok, nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, username string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[username]
	if !ok {
		return store.ErrNotFound
	}
	rec.LastLoginAt.Time = at
	rec.LastLoginAt.Valid = true
	m.users[username] = rec
	return nil
}

func (m *memUsers) List(_ context.Context) ([]store.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.UserRecord, 0, len(m.users))
	for _, rec := range m.users {
		rec.PasswordHash = ""
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memUsers) summary(username string) (types.UserSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[username]
	if !ok {
		return types.UserSummary{}, false
	}
	return rec.Public().Summary(), true
}

type memMessages struct {
	mu       sync.Mutex
	users    *memUsers
	messages []types.Message
}

func newMemMessages(users *memUsers) *memMessages {
	return &memMessages{users: users}
}

func (m *memMessages) Create(_ context.Context, from, to, body string, sentAt time.Time) (types.Message, error) {
	fromSummary, ok := m.users.summary(from)
	if !ok {
		return types.Message{}, store.ErrInvalidReference
	}
	toSummary, ok := m.users.summary(to)
	if !ok {
		return types.Message{}, store.ErrInvalidReference
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	msg := types.Message{
		ID:           int64(len(m.messages) + 1),
		FromUsername: from,
		ToUsername:   to,
		Body:         body,
		SentAt:       sentAt,
	}
	m.messages = append(m.messages, msg)
	msg.From = &fromSummary
	msg.To = &toSummary
	return msg, nil
}

func (m *memMessages) Get(_ context.Context, id int64) (types.Message, error) {
	m.mu.Lock()
	if id < 1 || int(id) > len(m.messages) {
		m.mu.Unlock()
		return types.Message{}, store.ErrNotFound
	}
	msg := m.messages[id-1]
	m.mu.Unlock()

	from, _ := m.users.summary(msg.FromUsername)
	to, _ := m.users.summary(msg.ToUsername)
	msg.From = &from
	msg.To = &to
	return msg, nil
}

func (m *memMessages) MarkRead(ctx context.Context, id int64, at time.Time) (types.Message, bool, error) {
	m.mu.Lock()
	changed := false
	if id >= 1 && int(id) <= len(m.messages) && m.messages[id-1].ReadAt == nil {
		readAt := at
		m.messages[id-1].ReadAt = &readAt
		changed = true
	}
	m.mu.Unlock()

	msg, err := m.Get(ctx, id)
	if err != nil {
		return types.Message{}, false, err
	}
	return msg, changed, nil
}

func (m *memMessages) SentBy(_ context.Context, username string) ([]types.Message, error) {
	return m.filter(func(msg *types.Message) bool {
		if msg.FromUsername != username {
			return false
		}
		to, _ := m.users.summary(msg.ToUsername)
		msg.To = &to
		return true
	}), nil
}

func (m *memMessages) ReceivedBy(_ context.Context, username string) ([]types.Message, error) {
	return m.filter(func(msg *types.Message) bool {
		if msg.ToUsername != username {
			return false
		}
		from, _ := m.users.summary(msg.FromUsername)
		msg.From = &from
		return true
	}), nil
}

func (m *memMessages) filter(keep func(*types.Message) bool) []types.Message {
	m.mu.Lock()
	snapshot := append([]types.Message(nil), m.messages...)
	m.mu.Unlock()

	out := make([]types.Message, 0)
	for _, msg := range snapshot {
		if keep(&msg) {
			out = append(out, msg)
		}
	}
	return out
}

type publishedEvent struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, publishedEvent{channel: channel, data: data, attrs: attrs})
	return attrs["event_id"], nil
}

func (p *recordingPublisher) channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.channel)
	}
	return out
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (o *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = buf.Bytes()
	o.types[key] = contentType
	return nil
}

func (o *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *memObjects) Bucket() string { return "test-bucket" }

// fixture wires the services over in-memory repositories with a
// controllable clock.
type fixture struct {
	users     *memUsers
	messages  *memMessages
	events    *recordingPublisher
	objects   *memObjects
	userSvc   *UserService
	msgSvc    *MessageService
	archive   *ArchiveService
	inbox     *Inbox
	clock     time.Time
	clockStep time.Duration
}

func newFixture() *fixture {
	f := &fixture{
		users:     newMemUsers(),
		events:    &recordingPublisher{},
		objects:   newMemObjects(),
		clock:     time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		clockStep: time.Minute,
	}
	f.messages = newMemMessages(f.users)
	f.userSvc = NewUserService(f.users, credential.NewBcryptStore(bcrypt.MinCost))
	f.userSvc.now = f.tick
	f.msgSvc = NewMessageService(f.messages, f.userSvc, f.events)
	f.msgSvc.now = f.tick
	f.archive = NewArchiveService(f.msgSvc, f.objects)
	f.archive.now = f.tick
	f.inbox = NewInbox(f.userSvc, f.msgSvc, f.archive)
	return f
}

func (f *fixture) tick() time.Time {
	f.clock = f.clock.Add(f.clockStep)
	return f.clock
}

func (f *fixture) register(username string) types.User {
	user, err := f.userSvc.Register(context.Background(), RegisterInput{
		Username:  username,
		Password:  username + "-secret",
		FirstName: "First " + username,
		LastName:  "Last " + username,
		Phone:     "555-" + username,
	})
	if err != nil {
		panic(err)
	}
	return user
}
