package matching

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/service/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticDirectory []models.DirectoryEntry

func (d staticDirectory) List(_ context.Context, _ uuid.UUID, f directory.Filter) ([]models.DirectoryEntry, error) {
	if len(d) > f.Limit {
		return d[:f.Limit], nil
	}
	return d, nil
}

type noProfiles struct{}

func (noProfiles) GetByUserID(context.Context, uuid.UUID) (*models.Profile, error) { return nil, nil }

type rankerFunc func(ctx context.Context, viewer *models.Profile, pool []models.DirectoryEntry) ([]string, error)

func (f rankerFunc) Rank(ctx context.Context, viewer *models.Profile, pool []models.DirectoryEntry) ([]string, error) {
	return f(ctx, viewer, pool)
}

func pool(followers ...int) staticDirectory {
	out := make(staticDirectory, len(followers))
	for i, n := range followers {
		out[i] = models.DirectoryEntry{Profile: models.Profile{UserID: uuid.New(), FollowerCount: n}}
	}
	return out
}

func ids(entries []models.DirectoryEntry) []uuid.UUID {
	out := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		out[i] = e.UserID
	}
	return out
}

func TestSuggest_UsesRanking(t *testing.T) {
	p := pool(10, 20, 30, 40)
	ranker := rankerFunc(func(context.Context, *models.Profile, []models.DirectoryEntry) ([]string, error) {
		return []string{p[2].UserID.String(), p[0].UserID.String(), p[2].UserID.String(), uuid.NewString()}, nil
	})
	svc := NewService(zap.NewNop(), p, noProfiles{}, ranker, 0)

	got, err := svc.Suggest(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p[2].UserID, p[0].UserID}, ids(got), "duplicates and unknown ids dropped")
}

func TestSuggest_FallsBack(t *testing.T) {
	p := pool(5, 500, 50, 5000)
	want := []uuid.UUID{p[3].UserID, p[1].UserID, p[2].UserID}

	cases := map[string]Ranker{
		"rate limited": rankerFunc(func(context.Context, *models.Profile, []models.DirectoryEntry) ([]string, error) {
			return nil, models.NewExternalServiceError("anthropic", 429, errors.New("slow down"))
		}),
		"not a uuid": rankerFunc(func(context.Context, *models.Profile, []models.DirectoryEntry) ([]string, error) {
			return []string{p[0].UserID.String(), "creator-1"}, nil
		}),
		"nothing in pool": rankerFunc(func(context.Context, *models.Profile, []models.DirectoryEntry) ([]string, error) {
			return []string{uuid.NewString()}, nil
		}),
		"no ranker": nil,
	}
	for name, ranker := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewService(zap.NewNop(), p, noProfiles{}, ranker, 0)
			got, err := svc.Suggest(context.Background(), uuid.New())
			require.NoError(t, err)
			assert.Equal(t, want, ids(got))
		})
	}
}

func TestSuggest_EmptyPool(t *testing.T) {
	called := false
	ranker := rankerFunc(func(context.Context, *models.Profile, []models.DirectoryEntry) ([]string, error) {
		called = true
		return nil, nil
	})
	svc := NewService(zap.NewNop(), staticDirectory{}, noProfiles{}, ranker, 0)

	got, err := svc.Suggest(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, called)
}

func TestPick_CapsAtTen(t *testing.T) {
	p := pool(make([]int, 15)...)
	raw := make([]string, len(p))
	for i, e := range p {
		raw[i] = e.UserID.String()
	}
	got, ok := Pick(p, raw)
	assert.True(t, ok)
	assert.Len(t, got, 10)
}

func TestParseIDs(t *testing.T) {
	got, err := ParseIDs("Here you go:\n```json\n[\"a\", \"b\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = ParseIDs("I can't help with that.")
	assert.ErrorIs(t, err, ErrNoRanking)

	_, err = ParseIDs("[1, 2]")
	assert.ErrorIs(t, err, ErrNoRanking)
}

func TestAnthropicRanker(t *testing.T) {
	p := pool(1, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		answer, _ := json.Marshal([]string{p[1].UserID.String()})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"content":       []map[string]any{{"type": "text", "text": string(answer)}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	r := NewAnthropicRanker("test-key", "claude-test", option.WithBaseURL(srv.URL))
	got, err := r.Rank(context.Background(), &models.Profile{Niche: "Gaming"}, p)
	require.NoError(t, err)
	assert.Equal(t, []string{p[1].UserID.String()}, got)
}

func TestAnthropicRanker_StatusMapping(t *testing.T) {
	for status, kind := range map[int]models.ExternalKind{
		http.StatusTooManyRequests: models.ExternalRateLimited,
		http.StatusPaymentRequired: models.ExternalPaymentRequired,
		http.StatusBadRequest:      models.ExternalUpstream,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
		}))

		r := NewAnthropicRanker("k", "m", option.WithBaseURL(srv.URL))
		_, err := r.Rank(context.Background(), &models.Profile{}, pool(1))
		srv.Close()

		var ext *models.ExternalServiceError
		require.True(t, errors.As(err, &ext), "status %d", status)
		assert.Equal(t, kind, ext.Kind)
		assert.Equal(t, status, ext.StatusCode)
	}
}
