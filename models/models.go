package models

import "time"

// ChatRequest is the body of POST /api/chat. ConversationID and History are
// optional; a stateless client may replay its own history instead of relying
// on a server-side session.
type ChatRequest struct {
	Message        string        `json:"message" binding:"required"`
	ConversationID string        `json:"conversation_id,omitempty"`
	History        []ChatMessage `json:"history,omitempty"`
}

// ChatMessage is one entry of a client-supplied history list.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Message        string        `json:"message"`
	ConversationID string        `json:"conversation_id"`
	Timestamp      string        `json:"timestamp"`
	Metadata       *ChatMetadata `json:"metadata,omitempty"`
}

// ChatMetadata carries the machine-readable parts of an assistant reply.
// All fields are optional; a purely conversational reply has none.
type ChatMetadata struct {
	SQLQuery  string       `json:"sql_query,omitempty"`
	Summary   *DataSummary `json:"data_summary,omitempty"`
	ChartSpec *ChartSpec   `json:"chart_spec,omitempty"`
	ChartType string       `json:"chart_type,omitempty"`
}

// DataSummary is a compact description of a query result for the client.
type DataSummary struct {
	RowCount  int             `json:"row_count"`
	Columns   []string        `json:"columns"`
	Truncated bool            `json:"truncated,omitempty"`
	Sample    [][]interface{} `json:"sample,omitempty"`
}

type UsageResponse struct {
	Tier             string `json:"tier"`
	QueriesUsed      *int   `json:"queries_used,omitempty"`
	QueriesRemaining *int   `json:"queries_remaining,omitempty"`
	QueriesLimit     *int   `json:"queries_limit,omitempty"`
}

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message within a conversation. Immutable once appended;
// Metadata is only ever set on assistant turns.
type Turn struct {
	Role      string        `json:"role"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"created_at"`
	Metadata  *ChatMetadata `json:"metadata,omitempty"`
}

// ConversationSession holds the ordered turn history for one conversation
// plus a pointer to the most recent query result.
type ConversationSession struct {
	ID         string       `json:"id"`
	Turns      []Turn       `json:"turns"`
	LastResult *QueryResult `json:"last_result,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Semantic column types of a QueryResult.
const (
	ColString   = "string"
	ColNumber   = "number"
	ColBoolean  = "boolean"
	ColDatetime = "datetime"
)

// QueryResult is a typed result set from the analytical store. Rows are
// positionally aligned with Columns. Truncated is set when the executor
// capped the row count rather than returning everything.
type QueryResult struct {
	Columns   []string        `json:"columns"`
	Types     []string        `json:"types"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated"`
}

// Summary builds a DataSummary with at most sampleRows sample rows.
func (r *QueryResult) Summary(sampleRows int) *DataSummary {
	s := &DataSummary{
		RowCount:  r.RowCount,
		Columns:   r.Columns,
		Truncated: r.Truncated,
	}
	n := sampleRows
	if n > len(r.Rows) {
		n = len(r.Rows)
	}
	if n > 0 {
		s.Sample = r.Rows[:n]
	}
	return s
}

// SQLAttempt outcomes.
const (
	AttemptSuccess        = "success"
	AttemptSyntaxError    = "syntax-error"
	AttemptExecutionError = "execution-error"
	AttemptTimeout        = "timeout"
)

// SQLAttempt records one iteration of the generate/execute loop.
type SQLAttempt struct {
	Index     int    `json:"index"`
	Statement string `json:"statement"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

// Chart kinds.
const (
	ChartBar     = "bar"
	ChartLine    = "line"
	ChartScatter = "scatter"
)

// ChartSpec is the fixed two-part chart contract: Data series plus Layout.
// Every series carries equally sized X and Y arrays.
type ChartSpec struct {
	Data   []ChartSeries `json:"data"`
	Layout ChartLayout   `json:"layout"`
}

type ChartSeries struct {
	Type string        `json:"type"`
	X    []interface{} `json:"x"`
	Y    []interface{} `json:"y"`
	Name string        `json:"name,omitempty"`
}

type ChartLayout struct {
	Title    TitleText `json:"title"`
	XAxis    AxisSpec  `json:"xaxis"`
	YAxis    AxisSpec  `json:"yaxis"`
	Template string    `json:"template,omitempty"`
	BarMode  string    `json:"barmode,omitempty"`
	Note     string    `json:"note,omitempty"`
}

type TitleText struct {
	Text string `json:"text"`
}

type AxisSpec struct {
	Title string `json:"title"`
}

// Usage tiers.
const (
	TierDemo  = "demo"
	TierAdmin = "admin"
)

// UsageRecord tracks one identity's queries inside the rolling window.
// Stamps holds the send time of every counted query, oldest first.
type UsageRecord struct {
	Identity    string      `json:"identity"`
	Tier        string      `json:"tier"`
	Count       int         `json:"count"`
	WindowStart time.Time   `json:"window_start"`
	Stamps      []time.Time `json:"stamps,omitempty"`
}

// TableSchema describes one table of the analytical store.
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
