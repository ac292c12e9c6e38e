package ai

import (
	"fmt"
	"strings"

	"hoopsight/models"
)

// BuildIntentPrompt constructs the single classification prompt for a turn.
func BuildIntentPrompt(userText string, recent []models.Turn) string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a basketball analytics assistant.\n")
	b.WriteString("Classify the user's latest message into exactly one of:\n\n")
	b.WriteString("CONVERSATIONAL - greetings, thanks, questions about the assistant itself, or anything that needs no data access\n")
	b.WriteString("DATA_QUERY - a question that must be answered from the statistics database\n")
	b.WriteString("DATA_QUERY_CHART - a data question where the user also wants a chart, graph, plot or other visualization\n\n")

	writeContext(&b, recent)

	b.WriteString("--- Latest Message ---\n")
	b.WriteString(userText)
	b.WriteString("\n\nReply with only the label, nothing else.")
	return b.String()
}

// BuildSQLPrompt constructs the generation prompt from the request, the
// schema catalog, and a bounded window of prior turns. The context window
// lets the model resolve references like "that team" or "compare to".
func BuildSQLPrompt(request string, schemaText string, recent []models.Turn) string {
	var b strings.Builder
	b.WriteString("You are a SQL expert assistant for a basketball statistics database. Below is the database schema:\n\n")
	b.WriteString(schemaText)
	b.WriteString("\n")

	writeContext(&b, recent)

	b.WriteString("--- User Request ---\n")
	b.WriteString(request)
	b.WriteString("\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Generate exactly one SELECT statement (a WITH clause ending in SELECT is fine).\n")
	b.WriteString("2. Never use INSERT, UPDATE, DELETE, DROP, ALTER, CREATE or any other statement that modifies data or schema.\n")
	b.WriteString("3. Use only tables and columns from the schema above.\n")
	b.WriteString("4. If the request is ambiguous about season or filter scope, use the most recent season and all rows unfiltered. Do not ask a clarifying question.\n")
	b.WriteString("5. Use the conversation context to resolve references like \"they\" or \"that team\".\n\n")
	b.WriteString("Return only the SQL query without any explanation or markdown formatting.")
	return b.String()
}

// BuildRepairPrompt feeds a failed statement and its execution error back in,
// seeking a corrected statement.
func BuildRepairPrompt(request string, schemaText string, failed string, errClass string, errMessage string) string {
	var b strings.Builder
	b.WriteString("You are a SQL expert assistant for a basketball statistics database. Below is the database schema:\n\n")
	b.WriteString(schemaText)
	b.WriteString("\n--- Original Request ---\n")
	b.WriteString(request)
	b.WriteString("\n\n--- Failed SQL ---\n")
	b.WriteString(failed)
	b.WriteString("\n\n--- Execution Error ---\n")
	b.WriteString(fmt.Sprintf("Error class: %s\nError message: %s\n\n", errClass, errMessage))
	b.WriteString("Fix the SQL so it executes successfully and still answers the original request. ")
	b.WriteString("Only SELECT statements are allowed. Use only tables and columns from the schema. ")
	b.WriteString("Return only the corrected SQL query without any explanation or markdown formatting.")
	return b.String()
}

// BuildAnswerPrompt asks for a short natural-language answer grounded in the
// query result.
func BuildAnswerPrompt(question string, sqlQuery string, summary *models.DataSummary) string {
	var b strings.Builder
	b.WriteString("You are a basketball analytics assistant. Answer the user's question based on the query result below.\n\n")
	b.WriteString("--- Question ---\n")
	b.WriteString(question)
	b.WriteString("\n\n--- SQL Executed ---\n")
	b.WriteString(sqlQuery)
	b.WriteString("\n\n--- Result ---\n")
	b.WriteString(fmt.Sprintf("Columns: %v\n", summary.Columns))
	b.WriteString(fmt.Sprintf("Rows: %d\n", summary.RowCount))
	if summary.Truncated {
		b.WriteString("Note: the result was truncated by the row limit.\n")
	}
	for i, row := range summary.Sample {
		b.WriteString(fmt.Sprintf("Row %d: %v\n", i+1, row))
	}
	b.WriteString("\nAnswer in one or two sentences. Mention concrete numbers from the result. ")
	b.WriteString("Do not mention SQL or the database. Return only the answer text.")
	return b.String()
}

// BuildChatPrompt constructs the prompt for a conversational turn.
func BuildChatPrompt(userText string, recent []models.Turn) string {
	var b strings.Builder
	b.WriteString("You are a helpful basketball analytics assistant. You can answer questions about team and player statistics from your database when asked. ")
	b.WriteString("Respond to the following message in a helpful and concise way.\n\n")

	writeContext(&b, recent)

	b.WriteString("--- Message ---\n")
	b.WriteString(userText)
	return b.String()
}

func writeContext(b *strings.Builder, recent []models.Turn) {
	if len(recent) == 0 {
		return
	}
	b.WriteString("--- Conversation Context ---\n")
	for _, turn := range recent {
		b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Text))
	}
	b.WriteString("\n")
}
