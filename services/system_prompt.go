package services

import (
	"fmt"

	"google.golang.org/genai"
)

// GetSystemPrompt defines the core instructions for the AI assistant.
func GetSystemPrompt() *genai.Content {
	prompt := `You are a highly knowledgeable AI assistant with access to a personal knowledge base of markdown notes. Your purpose is to help the user work with their notes.

Your capabilities:
1.  **Conversational Memory**: You can remember previous parts of the conversation. Answer follow-up questions without re-using tools when the information is already available.
2.  **Document Retrieval**: You can search the user's notes with the 'retrieveDocuments' tool. Use it whenever a question requires knowledge from the notes.
3.  **File Management**: You can create, edit, and delete markdown files with the 'createMarkdownFile', 'editMarkdownFile', and 'deleteMarkdownFile' tools, but only when the user explicitly asks for a file operation.

Always think step-by-step. Do not invent information. If the notes do not contain the answer, say so clearly.`

	contents := genai.Text(prompt)
	if len(contents) == 0 {
		return nil
	}
	return contents[0]
}

// BuildAnswerPrompt formats the one-shot prompt used for mailbox questions,
// where the retrieved context is gathered up front instead of via tools.
func BuildAnswerPrompt(question, contextSnippets string) string {
	return fmt.Sprintf(`Provide a concise, accurate, and informative response to the user's question based on the given context. Follow these guidelines:

1. Be descriptive but concise, focusing on the most relevant information.
2. Use a confident and authoritative tone.
3. Use proper Markdown formatting for enhanced readability.
4. Include relevant facts, figures, or brief examples if they enhance the answer.
5. If the context doesn't contain relevant information to answer the question, state that clearly.
6. Reference the source files when providing information, using the format [File Name].
7. Start your response immediately without any prefix or formatting.
8. IMPORTANT: DO NOT start your answer with a code fence. Only use fences for inline code snippets if absolutely necessary.

Question: %s

Context:
%s

Response:`, question, contextSnippets)
}
