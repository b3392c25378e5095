package extract

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/models"
)

// Completer is the slice of the model client the engine needs.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// Engine turns source content into validated proposal batches. Model parse
// failures are recovered into a success=false result; transport failures
// propagate as errors so callers can distinguish "the model said nothing
// useful" from "the model was unreachable".
type Engine struct {
	llm    Completer
	skills map[string]bool
	logger *logging.Logger
}

// NewEngine creates an extraction engine with the given enabled skills.
func NewEngine(llm Completer, skills map[string]bool, logger *logging.Logger) *Engine {
	return &Engine{
		llm:    llm,
		skills: skills,
		logger: logger,
	}
}

type proposalsEnvelope struct {
	Proposals []models.Proposal `json:"proposals"`
}

// Extract analyzes one piece of content and returns the proposals the model
// found in it. memoryContext carries rolling context from earlier runs into
// the prompt; empty means none.
func (e *Engine) Extract(ctx context.Context, content string, source models.TaskSource, sourceName, memoryContext string) (*models.ExtractionResult, error) {
	prompt := buildExtractionPrompt(content, source, sourceName, e.skills, memoryContext)
	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}

	text, err := e.llm.Complete(ctx, messages)
	if err != nil {
		var parseErr *errors.ErrLLMParse
		if stderrors.As(err, &parseErr) {
			return e.parseFailure(ctx, source, err), nil
		}
		return nil, err
	}

	var envelope proposalsEnvelope
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return e.parseFailure(ctx, source, &errors.ErrLLMParse{Err: err}), nil
	}

	for i := range envelope.Proposals {
		if envelope.Proposals[i].ID == "" {
			envelope.Proposals[i].ID = uuid.New().String()
		}
		envelope.Proposals[i].Normalize()
	}
	if envelope.Proposals == nil {
		envelope.Proposals = []models.Proposal{}
	}

	e.logger.InfoWithContext(ctx, "extracted proposals",
		"source", string(source), "count", len(envelope.Proposals))

	return &models.ExtractionResult{
		Success:         true,
		Source:          source,
		ProposalBatchID: uuid.New().String(),
		ProposalsCount:  len(envelope.Proposals),
		Proposals:       envelope.Proposals,
	}, nil
}

// ExtractItems concatenates fetched items into one analysis document and runs
// a single extraction over it.
func (e *Engine) ExtractItems(ctx context.Context, items []models.RawItem, source models.TaskSource, sourceName, memoryContext string) (*models.ExtractionResult, error) {
	if len(items) == 0 {
		return &models.ExtractionResult{
			Success:   true,
			Source:    source,
			Proposals: []models.Proposal{},
		}, nil
	}

	var content string
	for _, item := range items {
		content += fmt.Sprintf("## %s\n", item.Title)
		if item.Body != "" && item.Body != item.Title {
			content += item.Body + "\n"
		}
		if item.URL != "" {
			content += item.URL + "\n"
		}
		content += "\n"
	}
	return e.Extract(ctx, content, source, sourceName, memoryContext)
}

func (e *Engine) parseFailure(ctx context.Context, source models.TaskSource, err error) *models.ExtractionResult {
	e.logger.WarnWithContext(ctx, "model response was not valid JSON", "error", err.Error())
	return &models.ExtractionResult{
		Success:        false,
		Source:         source,
		ProposalsCount: 0,
		Proposals:      []models.Proposal{},
		Error:          err.Error(),
	}
}
