package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible
	// default or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names.
const (
	// PromptAnswerGrounded answers a question from retrieved context.
	// The template must contain PlaceholderContext and PlaceholderQuestion.
	PromptAnswerGrounded = "answer_grounded"

	// PromptAnswerUngrounded is used when retrieval found nothing.
	// The template must contain PlaceholderQuestion.
	PromptAnswerUngrounded = "answer_ungrounded"
)

// Placeholders substituted into prompt templates. Any other text, including
// a literal %, is sent to the model unchanged.
const (
	PlaceholderContext  = "{{context}}"
	PlaceholderQuestion = "{{question}}"
)
