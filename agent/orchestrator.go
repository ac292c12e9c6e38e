package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"hoopsight/ai"
	"hoopsight/chart"
	"hoopsight/models"
	"hoopsight/session"
	"hoopsight/store"
	"hoopsight/validation"
)

const sampleRows = 5

const apologyText = "Sorry, I wasn't able to answer that from the data. Could you try rephrasing the question?"

// Orchestrator is the top-level router: it classifies each turn's intent,
// decides whether to invoke the SQL engine and chart synthesizer, composes
// the reply, and updates the session. Downstream failures are converted into
// a degraded but well-formed reply; nothing escapes HandleTurn.
type Orchestrator struct {
	ai           *ai.AIService
	store        *store.Store
	engine       *SQLEngine
	sessions     *session.Store
	historyTurns int
}

// TurnResult is the composed outcome of one accepted turn.
type TurnResult struct {
	ConversationID string
	Reply          string
	Metadata       *models.ChatMetadata
}

func NewOrchestrator(aiService *ai.AIService, st *store.Store, engine *SQLEngine, sessions *session.Store, historyTurns int) *Orchestrator {
	if historyTurns <= 0 {
		historyTurns = 6
	}
	return &Orchestrator{
		ai:           aiService,
		store:        st,
		engine:       engine,
		sessions:     sessions,
		historyTurns: historyTurns,
	}
}

// HandleTurn processes one user turn to completion. A missing conversation
// id mints a fresh session; a client-supplied history reconstructs one.
// Exactly one assistant turn is appended per call, even on total failure.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID string, userText string, history []models.ChatMessage) (result *TurnResult) {
	if conversationID == "" {
		conversationID = session.Mint()
	}

	handle := o.sessions.Acquire(conversationID, history)
	defer handle.Release()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ORCHESTRATOR] Panic handling turn for %s: %v", conversationID, r)
			result = o.finishTurn(handle, conversationID, apologyText, nil)
		}
	}()

	// Context window is captured before the new turn is appended so the
	// prompt sees prior turns only.
	recent := handle.Recent(o.historyTurns)

	handle.Append(models.Turn{
		Role:      models.RoleUser,
		Text:      userText,
		CreatedAt: time.Now(),
	})

	if !validation.IsValidPrompt(userText) {
		return o.finishTurn(handle, conversationID,
			"I couldn't make sense of that message. Could you rephrase it?", nil)
	}

	// Requests to modify the data are refused before any SQL is generated.
	if validation.MentionsMutation(userText) {
		return o.finishTurn(handle, conversationID,
			"I can only read the data, not change it, so I can't fulfill that request. Ask me about the stats instead.", nil)
	}

	// One classification per turn; a misclassification is not retried.
	intent, err := o.ai.ClassifyIntent(ctx, userText, recent)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Intent classification failed, falling back to conversational: %v", err)
		intent = ai.IntentConversational
	}

	switch intent {
	case ai.IntentDataQuery, ai.IntentDataQueryChart:
		return o.handleDataQuery(ctx, handle, conversationID, userText, recent, intent == ai.IntentDataQueryChart)
	default:
		return o.handleConversational(ctx, handle, conversationID, userText, recent)
	}
}

func (o *Orchestrator) handleConversational(ctx context.Context, handle *session.Handle, conversationID string, userText string, recent []models.Turn) *TurnResult {
	reply, err := o.ai.GenerateChatResponse(ctx, userText, recent)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Chat generation failed: %v", err)
		return o.finishTurn(handle, conversationID, apologyText, nil)
	}
	return o.finishTurn(handle, conversationID, reply, nil)
}

func (o *Orchestrator) handleDataQuery(ctx context.Context, handle *session.Handle, conversationID string, userText string, recent []models.Turn, wantsChart bool) *TurnResult {
	catalog, err := o.store.Schema(ctx)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Failed to load schema catalog: %v", err)
		return o.finishTurn(handle, conversationID, apologyText, nil)
	}
	schemaText := store.FormatSchema(catalog)

	outcome, err := o.engine.GenerateAndRun(ctx, userText, schemaText, recent)
	if err != nil {
		log.Printf("[ORCHESTRATOR] SQL engine failed after %d attempts: %v", len(outcome.Attempts), err)
		return o.finishTurn(handle, conversationID, apologyText, nil)
	}

	handle.SetLastResult(outcome.Result)
	summary := outcome.Result.Summary(sampleRows)

	reply, err := o.ai.SummarizeResult(ctx, userText, outcome.Statement, summary)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Result summarization failed, using fallback text: %v", err)
		reply = fmt.Sprintf("The query returned %d rows across columns %v.", summary.RowCount, summary.Columns)
	}

	metadata := &models.ChatMetadata{
		SQLQuery: outcome.Statement,
		Summary:  summary,
	}

	if wantsChart {
		// The user text doubles as the chart hint ("trend", "comparison").
		if spec := chart.Synthesize(outcome.Result, userText); spec != nil {
			metadata.ChartSpec = spec
			metadata.ChartType = spec.Data[0].Type
		}
	}

	return o.finishTurn(handle, conversationID, reply, metadata)
}

// finishTurn appends the single assistant turn and composes the result.
// Metadata stays nil on degraded replies.
func (o *Orchestrator) finishTurn(handle *session.Handle, conversationID string, reply string, metadata *models.ChatMetadata) *TurnResult {
	handle.Append(models.Turn{
		Role:      models.RoleAssistant,
		Text:      reply,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	})
	return &TurnResult{
		ConversationID: conversationID,
		Reply:          reply,
		Metadata:       metadata,
	}
}
