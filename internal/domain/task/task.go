package task

import "encoding/json"

// Task is the envelope contract for anything placed on the retry queue.
type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

// DefaultTaskValue serializes a task payload for the queue.
func DefaultTaskValue(t interface{}) ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalTask decodes a queued payload back into its concrete task type.
func UnmarshalTask[T Task](data []byte) (T, error) {
	var t T
	err := json.Unmarshal(data, &t)
	return t, err
}
