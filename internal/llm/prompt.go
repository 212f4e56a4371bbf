package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

// promptTemplate asks for an answer with light markup followed by a single
// vocabulary line that vocab.Parse can split off.
const promptTemplate = `
Respond to the following query about vocabulary or language:
"{{.input}}"

Use **double asterisks** for bold text and *single asterisks* for italic text in your response.

After your response, on a new line, add "VOCABULARIES:" followed by a comma-separated list of key vocabulary words or phrases from your explanation.

Example format:
Here's an explanation of the **word** or *concept*...
VOCABULARIES: word1, word2, phrase1, word3
`

var vocabularyPrompt = prompts.NewPromptTemplate(promptTemplate, []string{"input"})

// BuildPrompt renders the fixed instruction prompt around the user's text.
func BuildPrompt(input string) (string, error) {
	prompt, err := vocabularyPrompt.Format(map[string]any{"input": input})
	if err != nil {
		return "", fmt.Errorf("llm: build prompt: %w", err)
	}
	return prompt, nil
}
