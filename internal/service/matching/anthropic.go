package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lalith-99/collabspace/internal/models"
)

const systemPrompt = "You are a helpful assistant that suggests creator collaborations. Always respond with a valid JSON array."

// AnthropicRanker asks Claude to order the pool.
type AnthropicRanker struct {
	client anthropic.Client
	model  string
}

func NewAnthropicRanker(apiKey, model string, opts ...option.RequestOption) *AnthropicRanker {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &AnthropicRanker{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (r *AnthropicRanker) Rank(ctx context.Context, viewer *models.Profile, pool []models.DirectoryEntry) ([]string, error) {
	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: 512,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(viewer, pool))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, models.NewExternalServiceError("anthropic", apiErr.StatusCode, err)
		}
		return nil, models.NewExternalServiceError("anthropic", 0, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseIDs(text.String())
}

func buildPrompt(viewer *models.Profile, pool []models.DirectoryEntry) string {
	var b strings.Builder
	b.WriteString("You help small creators find collaboration partners.\n\nCurrent creator:\n")
	fmt.Fprintf(&b, "- Niche: %s\n- Followers: %d\n- Bio: %s\n\nAvailable creators:\n",
		orDefault(viewer.Niche, "Unknown"), viewer.FollowerCount, orDefault(viewer.Bio, "No bio"))
	for i, e := range pool {
		fmt.Fprintf(&b, "%d. id=%s %s - %s (%d followers) - %s\n",
			i+1, e.UserID, e.DisplayName, orDefault(e.Niche, "no niche"), e.FollowerCount, e.Bio)
	}
	b.WriteString("\nBased on niche fit, similar audience size and likely synergy, recommend the best 3-5 creators. ")
	b.WriteString(`Return ONLY a JSON array of their ids, best first. Example: ["id1", "id2", "id3"]`)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// ParseIDs extracts the first JSON string array from a model answer.
func ParseIDs(answer string) ([]string, error) {
	start := strings.Index(answer, "[")
	if start == -1 {
		return nil, ErrNoRanking
	}
	end := strings.Index(answer[start:], "]")
	if end == -1 {
		return nil, ErrNoRanking
	}

	var ids []string
	if err := json.Unmarshal([]byte(answer[start:start+end+1]), &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRanking, err)
	}
	return ids, nil
}
