package services

import "google.golang.org/genai"

// GetAllTools declares the functions Gemini may call: vault search plus
// markdown file management.
func GetAllTools() []*genai.Tool {
	return []*genai.Tool{
		{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        "retrieveDocuments",
					Description: "Search the user's vault for notes relevant to a specific topic or question.",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"query": {
								Type:        genai.TypeString,
								Description: "The topic or question to search the vault for. Should be a concise search query.",
							},
						},
						Required: []string{"query"},
					},
				},
				{
					Name:        "createMarkdownFile",
					Description: "Create a new markdown note with specified content in the vault.",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"filename": {
								Type:        genai.TypeString,
								Description: "The name of the note to create, e.g. 'my_thoughts.md'. Must end with .md",
							},
							"content": {
								Type:        genai.TypeString,
								Description: "The markdown content to write into the note.",
							},
						},
						Required: []string{"filename", "content"},
					},
				},
				{
					Name:        "deleteMarkdownFile",
					Description: "Delete a markdown note from the vault.",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"filename": {
								Type:        genai.TypeString,
								Description: "The name of the note to delete, e.g. 'old_note.md'.",
							},
						},
						Required: []string{"filename"},
					},
				},
				{
					Name:        "editMarkdownFile",
					Description: "Append new content to an existing markdown note in the vault.",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"filename": {
								Type:        genai.TypeString,
								Description: "The name of the note to edit, e.g. 'project_ideas.md'.",
							},
							"content": {
								Type:        genai.TypeString,
								Description: "The new content to append to the end of the note.",
							},
						},
						Required: []string{"filename", "content"},
					},
				},
			},
		},
	}
}
