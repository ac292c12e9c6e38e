package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"hoopsight/ai"
	"hoopsight/models"
	"hoopsight/store"
	"hoopsight/validation"
)

// ErrGenerationExhausted is returned when every attempt of the
// self-correction loop failed.
var ErrGenerationExhausted = errors.New("generation-exhausted")

// SQLEngine turns a natural-language data request into a validated read-only
// statement, executing candidates against the store and repairing failures
// with the executor's structured error until the attempt budget runs out.
type SQLEngine struct {
	ai          *ai.AIService
	store       *store.Store
	maxAttempts int
}

// SQLOutcome is the result of one generate-and-run call. Attempts is the
// append-only trail of every candidate, in order; Statement and Result are
// only set when the last attempt succeeded.
type SQLOutcome struct {
	Statement string
	Result    *models.QueryResult
	Attempts  []models.SQLAttempt
}

func NewSQLEngine(aiService *ai.AIService, st *store.Store, maxAttempts int) *SQLEngine {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &SQLEngine{ai: aiService, store: st, maxAttempts: maxAttempts}
}

// GenerateAndRun runs the bounded self-correction loop:
// generate a candidate, execute it, and on failure regenerate from the
// failing statement plus its error. Stops on first success or after the
// attempt budget; never asks a clarifying question mid-loop.
func (e *SQLEngine) GenerateAndRun(ctx context.Context, request string, schemaText string, recent []models.Turn) (*SQLOutcome, error) {
	outcome := &SQLOutcome{}

	var lastStatement, lastErrClass, lastErrMessage string

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		var statement string
		var err error
		if attempt == 1 {
			statement, err = e.ai.GenerateSQL(ctx, request, schemaText, recent)
		} else {
			statement, err = e.ai.RepairSQL(ctx, request, schemaText, lastStatement, lastErrClass, lastErrMessage)
		}
		if err != nil {
			// The completion capability itself failed; its client already
			// retried with backoff, so there is nothing left to correct.
			return outcome, fmt.Errorf("sql generation failed: %w", err)
		}

		if !validation.IsReadOnlyQuery(statement) {
			detail := "statement must be a single read-only SELECT"
			if kw := validation.DisallowedKeyword(statement); kw != "" {
				detail = fmt.Sprintf("statement contains disallowed keyword %s; only read-only SELECT statements are allowed", kw)
			}
			outcome.Attempts = append(outcome.Attempts, models.SQLAttempt{
				Index:     attempt,
				Statement: statement,
				Outcome:   models.AttemptSyntaxError,
				Error:     detail,
			})
			lastStatement, lastErrClass, lastErrMessage = statement, store.ErrClassSyntax, detail
			log.Printf("[SQL ENGINE] Attempt %d rejected before execution: %s", attempt, detail)
			continue
		}

		result, execErr := e.store.Execute(ctx, statement)
		if execErr == nil {
			outcome.Attempts = append(outcome.Attempts, models.SQLAttempt{
				Index:     attempt,
				Statement: statement,
				Outcome:   models.AttemptSuccess,
			})
			outcome.Statement = statement
			outcome.Result = result
			return outcome, nil
		}

		outcome.Attempts = append(outcome.Attempts, models.SQLAttempt{
			Index:     attempt,
			Statement: statement,
			Outcome:   attemptOutcome(execErr.Class),
			Error:     execErr.Message,
		})
		lastStatement, lastErrClass, lastErrMessage = statement, execErr.Class, execErr.Message
		log.Printf("[SQL ENGINE] Attempt %d failed (%s): %s", attempt, execErr.Class, execErr.Message)
	}

	return outcome, fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, e.maxAttempts)
}

func attemptOutcome(errClass string) string {
	switch errClass {
	case store.ErrClassTimeout:
		return models.AttemptTimeout
	case store.ErrClassSyntax:
		return models.AttemptSyntaxError
	default:
		return models.AttemptExecutionError
	}
}
