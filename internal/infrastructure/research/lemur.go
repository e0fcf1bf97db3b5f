// Package research calls the AI backend that produces research payloads.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	assemblyai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/pkg/config"
)

// Client produces one research payload for one source. Implementations
// must be safe for concurrent use; the fetcher calls all sources at once.
type Client interface {
	GenerateResearch(ctx context.Context, briefing prep.Briefing, source prep.SourceDescriptor) (json.RawMessage, error)
}

// LemurClient calls the AssemblyAI LeMUR Task API.
type LemurClient struct {
	apiKey    string
	model     string
	maxTokens int64
}

// NewLemurClient creates a client for one tenant's API key.
func NewLemurClient(apiKey string) *LemurClient {
	return &LemurClient{
		apiKey:    apiKey,
		model:     config.ResearchModel,
		maxTokens: int64(config.ResearchMaxTokens),
	}
}

// GenerateResearch runs one source prompt against LeMUR and returns the
// JSON payload. Non-JSON responses are wrapped as {"text": ...} so the
// caller always stores valid JSON.
func (c *LemurClient) GenerateResearch(ctx context.Context, briefing prep.Briefing, source prep.SourceDescriptor) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("research backend not configured")
	}

	client := assemblyai.NewClient(c.apiKey)

	var params assemblyai.LeMURTaskParams
	params.Prompt = assemblyai.String(source.Prompt)
	params.InputText = assemblyai.String(briefingInput(briefing))
	params.FinalModel = assemblyai.LeMURModel(c.model)
	params.MaxOutputSize = assemblyai.Int64(c.maxTokens)
	params.Temperature = assemblyai.Float64(0.0)

	response, err := client.LeMUR.Task(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("lemur task failed for source %s: %w", source.ID, err)
	}

	if response.Response == nil || *response.Response == "" {
		return nil, fmt.Errorf("lemur returned empty response for source %s", source.ID)
	}

	raw := strings.TrimSpace(*response.Response)
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), nil
	}

	wrapped, err := json.Marshal(map[string]string{"text": raw})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap non-json response: %w", err)
	}
	return wrapped, nil
}

func briefingInput(b prep.Briefing) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\nRole: %s\n", b.Company, b.Role)
	if b.Industry != "" {
		fmt.Fprintf(&sb, "Industry: %s\n", b.Industry)
	}
	if b.JobDesc != "" {
		fmt.Fprintf(&sb, "Job description:\n%s\n", b.JobDesc)
	}
	return sb.String()
}
