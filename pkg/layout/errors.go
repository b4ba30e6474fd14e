package layout

import "errors"

var (
	// ErrEmptyFlow is returned when the flow has no root node
	ErrEmptyFlow = errors.New("flow has no root node")
	// ErrInvalidSizes is returned when layout dimensions are unusable
	ErrInvalidSizes = errors.New("invalid layout sizes")
)
