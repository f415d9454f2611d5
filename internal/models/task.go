package models

import (
	"time"
)

// TaskStatus values persisted in Postgres. A task starts pending and moves
// exactly once to success or failed.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Task is one image-processing request tied to one source URL.
type Task struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Status       string    `json:"status"`
	ResizeWidth  *int      `json:"resizeWidth,omitempty"`
	ResizeHeight *int      `json:"resizeHeight,omitempty"`
	Grayscale    bool      `json:"grayscale"`
	OutputPath   *string   `json:"outputPath,omitempty"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TransformSpec is the per-batch transform shared by every task in a submit
// request. Resize applies only when both dimensions are present.
type TransformSpec struct {
	ResizeWidth  *int `json:"resizeWidth,omitempty"`
	ResizeHeight *int `json:"resizeHeight,omitempty"`
	Grayscale    bool `json:"grayscale"`
}

// ShouldResize reports whether both dimensions are set and positive.
func (s TransformSpec) ShouldResize() bool {
	return s.ResizeWidth != nil && s.ResizeHeight != nil && *s.ResizeWidth > 0 && *s.ResizeHeight > 0
}

// Spec extracts the transform attached to a task.
func (t Task) Spec() TransformSpec {
	return TransformSpec{
		ResizeWidth:  t.ResizeWidth,
		ResizeHeight: t.ResizeHeight,
		Grayscale:    t.Grayscale,
	}
}

// Terminal reports whether the task has reached success or failed.
func (t Task) Terminal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}
