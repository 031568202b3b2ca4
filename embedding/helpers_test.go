package embedding

import (
	"fmt"

	"github.com/brunobiangulo/docqa/llm"
)

func llmConfig(provider, model string) llm.Config {
	return llm.Config{Provider: provider, Model: model, BaseURL: "http://127.0.0.1:1"}
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
