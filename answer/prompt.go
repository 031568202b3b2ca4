package answer

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a helpful assistant that answers questions based on the provided context. \n" +
	"If the answer cannot be found in the context, say \"" + Fallback + "\"\n" +
	"Always provide accurate, concise, and helpful answers."

// buildContext numbers the chunks as [1], [2], ... separated by blank lines.
func buildContext(contexts []string) string {
	var b strings.Builder
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, c)
	}
	return b.String()
}

func buildAnswerPrompt(question, context string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", context, question)
}
