package sponsored

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPosts struct {
	rows []*models.SponsoredPost
}

func (m *memPosts) ListActive(context.Context) ([]models.SponsoredPost, error) {
	out := make([]models.SponsoredPost, 0)
	for _, p := range m.rows {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPosts) Create(_ context.Context, p *models.SponsoredPost) (*models.SponsoredPost, error) {
	cp := *p
	cp.ID = uuid.New()
	m.rows = append(m.rows, &cp)
	return &cp, nil
}

func (m *memPosts) SetActive(_ context.Context, id uuid.UUID, active bool) (*models.SponsoredPost, error) {
	for _, p := range m.rows {
		if p.ID == id {
			p.IsActive = active
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

type adminSet map[uuid.UUID]bool

func (a adminSet) HasRole(_ context.Context, userID uuid.UUID, role models.Role) (bool, error) {
	return role == models.RoleAdmin && a[userID], nil
}

func TestCreateAndToggle(t *testing.T) {
	admin := uuid.New()
	posts := &memPosts{}
	svc := NewService(posts, adminSet{admin: true})
	ctx := context.Background()

	p, err := svc.Create(ctx, admin, NewPost{Title: " Summer deals ", LinkURL: "https://brand.example/summer"})
	require.NoError(t, err)
	assert.Equal(t, "Summer deals", p.Title)
	assert.True(t, p.IsActive)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = svc.SetActive(ctx, admin, p.ID, false)
	require.NoError(t, err)

	active, err = svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.SetActive(ctx, admin, uuid.New(), true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdminOnly(t *testing.T) {
	svc := NewService(&memPosts{}, adminSet{})
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.New(), NewPost{Title: "x", LinkURL: "https://x.example"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.SetActive(ctx, uuid.New(), uuid.New(), false)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestCreate_Validation(t *testing.T) {
	admin := uuid.New()
	svc := NewService(&memPosts{}, adminSet{admin: true})

	for _, in := range []NewPost{
		{Title: "", LinkURL: "https://x.example"},
		{Title: "x", LinkURL: "x.example"},
		{Title: "x", LinkURL: "https://x.example", ImageURL: "data:image/png;base64,AAAA"},
		{Title: "x", LinkURL: "https://x.example", DisplayOrder: -1},
	} {
		_, err := svc.Create(context.Background(), admin, in)
		assert.ErrorIs(t, err, models.ErrValidation, "%+v", in)
	}
}
