package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"hoopsight/cache"
	"hoopsight/models"
)

// AIService is the completion capability: prompt in, text out. Everything
// else (SQL validation, retry policy, chart derivation) lives in the callers.
type AIService struct {
	apiKey             string
	modelName          string
	cache              *cache.Cache
	httpClient         *http.Client
	apiURL             string
	lastRequestTime    time.Time // Track last request time for request pacing
	requestMutex       sync.Mutex
	minRequestInterval time.Duration
}

type DashScopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []DashScopeMessage `json:"messages"`
	} `json:"input"`
}

type DashScopeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type DashScopeResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

func New(apiKey string, modelName string, apiURL string, cache *cache.Cache) (*AIService, error) {
	httpClient := &http.Client{
		Timeout: 120 * time.Second,
	}

	return &AIService{
		apiKey:             apiKey,
		modelName:          modelName,
		cache:              cache,
		httpClient:         httpClient,
		apiURL:             apiURL,
		lastRequestTime:    time.Time{},
		minRequestInterval: 500 * time.Millisecond, // Minimum 500ms between requests
	}, nil
}

func (a *AIService) Close() error {
	// HTTP client doesn't require explicit closing
	return nil
}

// rateLimit ensures minimum time between requests to prevent burst rate errors
func (a *AIService) rateLimit() {
	a.requestMutex.Lock()
	defer a.requestMutex.Unlock()

	now := time.Now()
	timeSinceLastRequest := now.Sub(a.lastRequestTime)

	if timeSinceLastRequest < a.minRequestInterval {
		waitTime := a.minRequestInterval - timeSinceLastRequest
		time.Sleep(waitTime)
	}

	a.lastRequestTime = time.Now()
}

func (a *AIService) callDashScopeAPI(ctx context.Context, messages []DashScopeMessage) (string, error) {
	// Apply pacing before making request
	a.rateLimit()

	reqBody := DashScopeRequest{
		Model: a.modelName,
	}
	reqBody.Input.Messages = messages

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// Retry logic with exponential backoff for rate limit errors
	maxRetries := 3
	baseDelay := 2 * time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2s, 4s, 8s
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
			a.rateLimit()
		}

		req, err := http.NewRequestWithContext(ctx, "POST", a.apiURL, bytes.NewBuffer(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.apiKey))
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries {
				continue // Retry on network errors
			}
			return "", fmt.Errorf("failed to send request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if attempt < maxRetries {
				continue // Retry on read errors
			}
			return "", fmt.Errorf("failed to read response: %w", err)
		}

		// Handle provider rate limiting (429) with retry
		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt < maxRetries {
				continue // Retry with backoff
			}
			return "", fmt.Errorf("API returned status %d: %s. Max retries exceeded.", resp.StatusCode, string(body))
		}

		if resp.StatusCode != http.StatusOK {
			var errorResp struct {
				Code      string `json:"code"`
				Message   string `json:"message"`
				RequestID string `json:"request_id"`
			}
			if err := json.Unmarshal(body, &errorResp); err == nil {
				return "", fmt.Errorf("API error (status %d): %s - %s (request_id: %s)",
					resp.StatusCode, errorResp.Code, errorResp.Message, errorResp.RequestID)
			}
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}

		var dashScopeResp DashScopeResponse
		if err := json.Unmarshal(body, &dashScopeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}

		if dashScopeResp.Code != "" && dashScopeResp.Code != "Success" {
			return "", fmt.Errorf("API error: %s - %s", dashScopeResp.Code, dashScopeResp.Message)
		}

		if len(dashScopeResp.Output.Choices) == 0 {
			return "", fmt.Errorf("no response from AI model")
		}

		return dashScopeResp.Output.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("max retries exceeded")
}

// stripFences removes markdown code blocks the model sometimes wraps around
// its output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```sql", "```SQL", "```json", "```JSON", "```"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Intent labels returned by ClassifyIntent.
const (
	IntentConversational = "CONVERSATIONAL"
	IntentDataQuery      = "DATA_QUERY"
	IntentDataQueryChart = "DATA_QUERY_CHART"
)

// ClassifyIntent decides once per turn whether the message needs data access
// and whether a chart was asked for. Falls back to CONVERSATIONAL when the
// reply is unusable; a misclassification is not retried.
func (a *AIService) ClassifyIntent(ctx context.Context, userText string, recent []models.Turn) (string, error) {
	cacheKey := fmt.Sprintf("intent:%s", userText)
	if len(recent) == 0 {
		if cached, found := a.cache.GetString(cacheKey); found {
			return cached, nil
		}
	}

	prompt := BuildIntentPrompt(userText, recent)
	messages := []DashScopeMessage{{Role: "user", Content: prompt}}

	reply, err := a.callDashScopeAPI(ctx, messages)
	if err != nil {
		return IntentConversational, err
	}

	s := strings.ToUpper(strings.TrimSpace(reply))
	intent := IntentConversational
	switch {
	case strings.Contains(s, IntentDataQueryChart) || strings.Contains(s, "CHART"):
		intent = IntentDataQueryChart
	case strings.Contains(s, IntentDataQuery) || strings.Contains(s, "QUERY"):
		intent = IntentDataQuery
	}

	if len(recent) == 0 {
		a.cache.SetDefault(cacheKey, intent)
	}
	return intent, nil
}

// GenerateSQL produces a candidate statement for a natural-language request.
func (a *AIService) GenerateSQL(ctx context.Context, request string, schemaText string, recent []models.Turn) (string, error) {
	prompt := BuildSQLPrompt(request, schemaText, recent)
	messages := []DashScopeMessage{{Role: "user", Content: prompt}}

	response, err := a.callDashScopeAPI(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate SQL: %w", err)
	}

	return stripFences(response), nil
}

// RepairSQL produces the next candidate from the failing statement and its
// structured execution error.
func (a *AIService) RepairSQL(ctx context.Context, request string, schemaText string, failed string, errClass string, errMessage string) (string, error) {
	prompt := BuildRepairPrompt(request, schemaText, failed, errClass, errMessage)
	messages := []DashScopeMessage{{Role: "user", Content: prompt}}

	response, err := a.callDashScopeAPI(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to repair SQL: %w", err)
	}

	return stripFences(response), nil
}

// SummarizeResult turns a query result into a short natural-language answer.
func (a *AIService) SummarizeResult(ctx context.Context, question string, sqlQuery string, summary *models.DataSummary) (string, error) {
	prompt := BuildAnswerPrompt(question, sqlQuery, summary)
	messages := []DashScopeMessage{{Role: "user", Content: prompt}}

	response, err := a.callDashScopeAPI(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to summarize result: %w", err)
	}

	return stripFences(response), nil
}

// GenerateChatResponse generates a plain chat response for conversational turns.
func (a *AIService) GenerateChatResponse(ctx context.Context, userText string, recent []models.Turn) (string, error) {
	cacheKey := fmt.Sprintf("chat:%s", userText)
	if len(recent) == 0 {
		if cached, found := a.cache.GetString(cacheKey); found {
			return cached, nil
		}
	}

	prompt := BuildChatPrompt(userText, recent)
	messages := []DashScopeMessage{{Role: "user", Content: prompt}}

	response, err := a.callDashScopeAPI(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate chat response: %w", err)
	}

	reply := stripFences(response)
	if len(recent) == 0 {
		a.cache.SetDefault(cacheKey, reply)
	}
	return reply, nil
}
