package clinic

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrSlotConflict      = errors.New("this time slot is already booked")
	ErrInvalidTransition = errors.New("status transition not allowed")
)
