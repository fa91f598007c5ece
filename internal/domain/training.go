package domain

// TrainingExample is one input/target pair handed to a fine-tune call,
// materialized from a window of FeedbackRecord values.
type TrainingExample struct {
	Input  string `json:"input"`
	Target string `json:"target"`
}

// Message is a single turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
