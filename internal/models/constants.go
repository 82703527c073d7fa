package models

const ContextSeparator = "\n\n---\n\n"

var (
	AnswerPromptTemplate = `Answer the question based on the provided context.
If you don't know the answer or if the context doesn't contain
relevant information, say you don't know.

Context: %s

Question: %s

Answer:`
)
