package collab

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRequests struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.CollaborationRequest
}

func newMemRequests() *memRequests {
	return &memRequests{rows: make(map[uuid.UUID]*models.CollaborationRequest)}
}

func (m *memRequests) Create(_ context.Context, requesterID, receiverID uuid.UUID, title, description string) (*models.CollaborationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	r := &models.CollaborationRequest{
		ID: uuid.New(), RequesterID: requesterID, ReceiverID: receiverID,
		Title: title, Description: description, Status: models.CollabPending,
		CreatedAt: now, UpdatedAt: now,
	}
	m.rows[r.ID] = r
	cp := *r
	return &cp, nil
}

func (m *memRequests) GetByID(_ context.Context, id uuid.UUID) (*models.CollaborationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRequests) Transition(_ context.Context, id uuid.UUID, from, to models.CollabStatus) (*models.CollaborationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Status != from {
		return nil, nil
	}
	r.Status = to
	cp := *r
	return &cp, nil
}

func (m *memRequests) ListActiveForUser(_ context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CollaborationRequest, 0)
	for _, r := range m.rows {
		if r.Involves(userID) && r.Status != models.CollabRejected {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memProfiles map[uuid.UUID]bool

func (m memProfiles) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	if !m[userID] {
		return nil, nil
	}
	return &models.Profile{UserID: userID}, nil
}

type sent struct {
	to  uuid.UUID
	typ models.NotificationType
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, typ models.NotificationType, _, _ string, _ *string) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{to: userID, typ: typ})
	return &models.Notification{ID: uuid.New(), UserID: userID, Type: typ}, nil
}

type fixture struct {
	svc       *Service
	requests  *memRequests
	notes     *recordingNotifier
	requester uuid.UUID
	receiver  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		requests:  newMemRequests(),
		notes:     &recordingNotifier{},
		requester: uuid.New(),
		receiver:  uuid.New(),
	}
	profiles := memProfiles{f.requester: true, f.receiver: true}
	f.svc = NewService(zap.NewNop(), f.requests, profiles, f.notes)
	return f
}

func (f *fixture) pending(t *testing.T) *models.CollaborationRequest {
	t.Helper()
	r, err := f.svc.Create(context.Background(), f.requester, f.receiver, "Joint video", "Let's film together")
	require.NoError(t, err)
	return r
}

func TestCreate(t *testing.T) {
	f := newFixture()
	r := f.pending(t)

	assert.Equal(t, models.CollabPending, r.Status)
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, sent{to: f.receiver, typ: models.NotificationApplication}, f.notes.sent[0])
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.requester, f.requester, "Self", "")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.Create(ctx, f.requester, f.receiver, "   ", "")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.Create(ctx, f.requester, f.receiver, strings.Repeat("x", 201), "")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.Create(ctx, f.requester, f.receiver, "ok", strings.Repeat("x", 2001))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.Create(ctx, f.requester, uuid.New(), "Unknown receiver", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Empty(t, f.notes.sent)
}

func TestCreate_DuplicatePendingAllowed(t *testing.T) {
	f := newFixture()
	a := f.pending(t)
	b := f.pending(t)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRespond_Accept(t *testing.T) {
	f := newFixture()
	r := f.pending(t)

	updated, err := f.svc.Respond(context.Background(), r.ID, Accept, f.receiver)
	require.NoError(t, err)
	assert.Equal(t, models.CollabAccepted, updated.Status)
	assert.Equal(t, sent{to: f.requester, typ: models.NotificationRequestUpdate}, f.notes.sent[1])
}

func TestRespond_RejectDropsFromActiveViews(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.pending(t)

	_, err := f.svc.Respond(ctx, r.ID, Reject, f.receiver)
	require.NoError(t, err)

	for _, user := range []uuid.UUID{f.requester, f.receiver} {
		list, err := f.svc.ListActive(ctx, user)
		require.NoError(t, err)
		assert.Empty(t, list)
	}
}

func TestRespond_Errors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.pending(t)

	_, err := f.svc.Respond(ctx, r.ID, Accept, f.requester)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.Respond(ctx, r.ID, Decision("maybe"), f.receiver)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.Respond(ctx, uuid.New(), Accept, f.receiver)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Respond(ctx, r.ID, Reject, f.receiver)
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, r.ID, Accept, f.receiver)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestRespond_ConcurrentRespondersOneWins(t *testing.T) {
	f := newFixture()
	r := f.pending(t)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		decision := Accept
		if i%2 == 1 {
			decision = Reject
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Respond(context.Background(), r.ID, decision, f.receiver)
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, models.ErrInvalidTransition):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), conflicts.Load())
}

func TestMarkComplete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.pending(t)

	_, err := f.svc.MarkComplete(ctx, r.ID, f.requester)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "pending cannot complete")

	_, err = f.svc.Respond(ctx, r.ID, Accept, f.receiver)
	require.NoError(t, err)

	_, err = f.svc.MarkComplete(ctx, r.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	done, err := f.svc.MarkComplete(ctx, r.ID, f.requester)
	require.NoError(t, err)
	assert.Equal(t, models.CollabCompleted, done.Status)
	assert.Equal(t, sent{to: f.receiver, typ: models.NotificationRequestUpdate}, f.notes.sent[len(f.notes.sent)-1])

	_, err = f.svc.MarkComplete(ctx, r.ID, f.receiver)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "completed is terminal")
}
