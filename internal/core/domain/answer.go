package domain

// AnswerSourceRAG marks answers produced by the retrieval pipeline.
const AnswerSourceRAG = "rag"

// Answer is the response to a single question. It is not persisted.
type Answer struct {
	// Text is the generative model output, verbatim.
	Text string `json:"text"`

	// Grounded is true when at least one chunk was supplied as context.
	Grounded bool `json:"grounded"`

	// ContextUsed lists the distinct source names supplied as context, in rank order.
	ContextUsed []string `json:"context_used"`

	// Source is always AnswerSourceRAG.
	Source string `json:"source"`
}
