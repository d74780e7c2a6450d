package agent

import (
	"fmt"
	"strings"

	"github.com/quillmind/quill/knowledge"
)

// SystemPrompt is the default assistant persona.
const SystemPrompt = `You are Quill, a helpful assistant with access to a knowledge base and a set of tools.

Guidelines:
- Answer from the provided knowledge base context when it is relevant, and say so when it is not.
- Use tools when they help: the calculator for arithmetic, the knowledge search for stored documents, the image tool when the user attached an image.
- Be concise and direct. If you do not know something, say so rather than guessing.`

// buildKnowledgePrompt prefixes the user's question with retrieved context.
// An empty retrieval returns the question unchanged.
func buildKnowledgePrompt(question string, retrieval *knowledge.RetrievalResult) string {
	if retrieval.Empty() {
		return question
	}

	var b strings.Builder
	b.WriteString("[Knowledge base context]\n")
	if len(retrieval.Filenames) > 0 {
		fmt.Fprintf(&b, "Sources: %s\n", strings.Join(retrieval.Filenames, ", "))
	}
	for i, doc := range retrieval.Docs {
		fmt.Fprintf(&b, "\n--- Document fragment %d ---\n%s\n", i+1, doc.Content)
	}
	b.WriteString("\n--- User question ---\n")
	b.WriteString(question)
	return b.String()
}

// sessionContextPrefix reminds the model which files the user has uploaded
// in this session.
func sessionContextPrefix(uploadedDocs []string) string {
	if len(uploadedDocs) == 0 {
		return ""
	}
	return fmt.Sprintf("[Session context] The user has uploaded these documents in this conversation: %s\n\n", strings.Join(uploadedDocs, ", "))
}

// imageHint tells the model an image is attached. The wording differs with
// tool availability because only the tool path can inspect the image.
func imageHint(useTools bool) string {
	if useTools {
		return "\n\n[An image is attached to this message. Use the analyze_image tool to inspect it.]"
	}
	return "\n\n[An image is attached to this message, but image analysis is unavailable because tools are disabled.]"
}
