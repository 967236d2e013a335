package domain

import "time"

// ToastKind is the lifecycle stage of a user-facing notification.
type ToastKind string

const (
	ToastLoading ToastKind = "loading"
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
)

// Toast is a single user-facing notification. A loading toast is later
// replaced, under the same ID, by a success or error toast.
type Toast struct {
	ID        string    `json:"id"`
	Kind      ToastKind `json:"kind"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}
