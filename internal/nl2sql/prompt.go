package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
)

const sqlSystemPrompt = "You are a SQL assistant for a PostgreSQL database. " +
	"You answer with exactly one read-only SELECT statement and nothing else."

const insightSystemPrompt = "You are a data analyst. You summarize query results for business users."

// BuildSQLPrompt embeds the context pack, the question and the row limit.
func BuildSQLPrompt(context, question string, limit int) Prompt {
	user := fmt.Sprintf(
		"Schema context (short handles T1, T2, ... are visual markers only):\n%s\n\n"+
			"Strict rules:\n"+
			"- Write a SINGLE valid PostgreSQL query.\n"+
			"- SELECT only, no DDL or DML.\n"+
			"- Use the REAL table names, not T1/T2/T3.\n"+
			"- Use only the columns listed in the context.\n"+
			"- Join along the listed relations.\n"+
			"- Add LIMIT %d if needed.\n"+
			"- Output the bare SQL, without ``` fences or comments.\n\n"+
			"Question: %q\nSQL:",
		strings.TrimSpace(context),
		limit,
		strings.TrimSpace(question),
	)
	return Prompt{Purpose: PurposeSQL, System: sqlSystemPrompt, User: user}
}

// BuildInterpretPrompt embeds the question, a CSV sample of the result and
// per-column numeric statistics.
func BuildInterpretPrompt(question, sampleCSV string, stats any) (Prompt, error) {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return Prompt{}, fmt.Errorf("marshal result stats: %w", err)
	}
	user := fmt.Sprintf(
		"Context:\n"+
			"- Question: %s\n"+
			"- Preview (CSV):\n%s\n"+
			"- Statistics: %s\n\n"+
			"Give a clear summary (2-4 sentences) followed by 3-5 bullet points on trends, peaks, anomalies "+
			"and comparisons. Mention any limits of the data such as quality or scope.",
		strings.TrimSpace(question),
		strings.TrimRight(sampleCSV, "\n"),
		string(statsJSON),
	)
	return Prompt{Purpose: PurposeInsight, System: insightSystemPrompt, User: user}, nil
}
