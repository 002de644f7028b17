package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"
	"github.com/jamnotes/jam-service/internal/postgres"
)

// fakeStore is an in-memory stand-in for the postgres repositories. It keeps
// just enough behavior for the services to be exercised without a database.
type fakeStore struct {
	mu     sync.Mutex
	rooms  map[string]*domain.Room
	parts  map[string]map[string]*domain.Participant // roomID -> userID -> participant
	msgs   map[string][]domain.Message
	tracks map[string]*domain.Track

	forceCollisions int // make CodeInUse report a clash this many times
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:  map[string]*domain.Room{},
		parts:  map[string]map[string]*domain.Participant{},
		msgs:   map[string][]domain.Message{},
		tracks: map[string]*domain.Track{},
	}
}

// --- RoomRepo ---

func (f *fakeStore) CreateWithCreator(ctx context.Context, room *domain.Room, creator *domain.Participant, welcome *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = room
	f.parts[room.ID] = map[string]*domain.Participant{creator.UserID: creator}
	f.msgs[room.ID] = append(f.msgs[room.ID], *welcome)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Code == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrCodeNotFound
}

func (f *fakeStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceCollisions > 0 {
		f.forceCollisions--
		return true, nil
	}
	for _, r := range f.rooms {
		if r.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) List(ctx context.Context) ([]domain.RoomListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RoomListItem
	for _, r := range f.rooms {
		item := domain.RoomListItem{Room: *r}
		for _, p := range f.parts[r.ID] {
			if p.IsActive {
				item.ActiveParticipants++
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdatePlayback(ctx context.Context, roomID string, trackID *string, isPlaying bool, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if trackID != nil {
		r.CurrentTrackID = trackID
	}
	r.IsPlaying = isPlaying
	r.TrackStartedAt = &startedAt
	r.PlaybackUpdatedAt = startedAt
	return nil
}

func (f *fakeStore) DeleteCascade(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomID)
	delete(f.parts, roomID)
	delete(f.msgs, roomID)
	return nil
}

func (f *fakeStore) ListIdle(ctx context.Context, olderThan time.Duration) ([]string, error) {
	return nil, nil
}

// --- ParticipantRepo ---

func (f *fakeStore) Get(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parts[roomID][userID]
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) Create(ctx context.Context, p *domain.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.parts[p.RoomID] == nil {
		f.parts[p.RoomID] = map[string]*domain.Participant{}
	}
	if _, exists := f.parts[p.RoomID][p.UserID]; exists {
		return nil // mirrors ON CONFLICT DO NOTHING
	}
	cp := *p
	f.parts[p.RoomID][p.UserID] = &cp
	return nil
}

func (f *fakeStore) Reactivate(ctx context.Context, roomID, userID, displayName string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parts[roomID][userID]
	if !ok {
		return domain.ErrNotInRoom
	}
	p.IsActive = true
	p.DisplayName = displayName
	p.LastActive = now
	return nil
}

func (f *fakeStore) Touch(ctx context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.parts[roomID][userID]; ok {
		p.LastActive = time.Now()
	}
	return nil
}

func (f *fakeStore) ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Participant
	for _, p := range f.parts[roomID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (f *fakeStore) CountActive(ctx context.Context, roomID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.parts[roomID] {
		if p.IsActive {
			n++
		}
	}
	return n, nil
}

// Leave mirrors the repository semantics: deactivate, transfer creatorship to
// the earliest-joined remaining active participant, delete when the room
// empties.
func (f *fakeStore) Leave(ctx context.Context, roomID, userID string) (*postgres.LeaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parts[roomID][userID]
	if !ok || !p.IsActive {
		return nil, domain.ErrNotInRoom
	}
	wasCreator := p.IsCreator
	p.IsActive = false
	p.IsCreator = false

	var remaining []*domain.Participant
	for _, other := range f.parts[roomID] {
		if other.IsActive {
			remaining = append(remaining, other)
		}
	}
	if len(remaining) == 0 {
		delete(f.rooms, roomID)
		delete(f.parts, roomID)
		delete(f.msgs, roomID)
		return &postgres.LeaveResult{RoomDeleted: true, WasCreator: wasCreator}, nil
	}

	res := &postgres.LeaveResult{WasCreator: wasCreator}
	if wasCreator {
		sort.Slice(remaining, func(i, j int) bool { return remaining[i].JoinedAt.Before(remaining[j].JoinedAt) })
		remaining[0].IsCreator = true
		cp := *remaining[0]
		res.NewCreator = &cp
	}
	return res, nil
}

func (f *fakeStore) DeactivateStale(ctx context.Context, olderThan time.Duration) ([]domain.Participant, error) {
	return nil, nil
}

// --- MessageRepo ---

func (f *fakeStore) Save(ctx context.Context, m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[m.RoomID] = append(f.msgs[m.RoomID], *m)
	return nil
}

func (f *fakeStore) Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append([]domain.Message(nil), f.msgs[roomID]...)
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// --- TrackRepo ---

func (f *fakeStore) GetTrack(ctx context.Context, id string) (*domain.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[id]
	if !ok {
		return nil, domain.ErrTrackNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListPublic(ctx context.Context) ([]domain.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Track
	for _, t := range f.tracks {
		if t.IsPublic {
			out = append(out, *t)
		}
	}
	return out, nil
}

// trackRepo adapts fakeStore to the TrackRepo interface, whose GetByID name
// collides with the RoomRepo method on the same fake.
type trackRepo struct{ *fakeStore }

func (t trackRepo) GetByID(ctx context.Context, id string) (*domain.Track, error) {
	return t.GetTrack(ctx, id)
}

// --- Broadcaster ---

type fakeBus struct {
	mu   sync.Mutex
	envs []broadcast.Envelope
	err  error
}

func (b *fakeBus) Publish(ctx context.Context, env broadcast.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.envs = append(b.envs, env)
	return nil
}

func (b *fakeBus) byType(typ string) []broadcast.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcast.Envelope
	for _, e := range b.envs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
