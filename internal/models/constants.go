package models

const (
	ContextSeparator = "\n---\n"
	IndexVersion     = 1

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 400
	DefaultTopK         = 4
)

var (
	SystemPrompt = `Use the context below to answer the user's questions.
If the context does not contain the answer, say explicitly that the information is not available
in the uploaded documents instead of guessing.
Answer in Markdown, using headings, lists and tables where they help.`

	ContextPromptTemplate = `%s

Context:
%s`

	// DefaultModels is the catalog offered when the config does not list one
	DefaultModels = []string{
		"gpt-3.5-turbo",
		"gpt-4",
		"gpt-4-turbo",
	}
)
