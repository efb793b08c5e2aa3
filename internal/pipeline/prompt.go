package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const notJSONMessage = "Model output was not valid JSON."

func buildInstructions(schema json.RawMessage) string {
	var indented bytes.Buffer
	if err := json.Indent(&indented, schema, "", "  "); err != nil {
		indented.Reset()
		indented.Write(bytes.TrimSpace(schema))
	}

	parts := []string{
		"You are a JSON-producing assistant.",
		"Return ONLY a JSON object with no extra text, code fences, or commentary.",
		"The JSON MUST strictly conform to the following JSON Schema:",
		indented.String(),
		"Do not include fields that are not in the schema. Use correct types.",
	}
	return strings.Join(parts, "\n\n")
}

func buildPrompt(instructions string, attempt, attempts int, previousErrors, rendered string) string {
	header := fmt.Sprintf("Attempt %d of %d.", attempt, attempts)
	retryNote := ""
	if previousErrors != "" {
		retryNote = "Previous output failed schema validation with errors:\n" + previousErrors + "\nPlease correct the JSON to satisfy the schema."
	}
	return instructions + "\n\n" + header + "\n" + retryNote + "\n\n" + rendered
}
