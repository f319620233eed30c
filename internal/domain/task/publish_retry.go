package task

import "discounthub/harvester/internal/domain"

// PublishRetryTask parks one failed publish chunk on the retry stream so it
// can be re-posted at the end of the run. Duplicate delivery is acceptable:
// the receiving API applies the same replace-by-source semantics.
type PublishRetryTask struct {
	Source  string           `json:"source"`
	Chunk   []domain.Product `json:"chunk"`
	Attempt int              `json:"attempt"`
	Error   string           `json:"error"`
}

func (t *PublishRetryTask) TaskType() string {
	return "PublishRetryTask"
}

func (t *PublishRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
