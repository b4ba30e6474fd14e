package flow

import "errors"

// Sentinel errors for building and decoding flows
var (
	// ErrUnknownNodeType is returned when a node's "type" is not agent, group or branch
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrMissingField is returned when a required wire field is absent
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidField is returned when a wire field holds an unexpected value
	ErrInvalidField = errors.New("invalid field value")
	// ErrInvalidJSON is returned when the input is not a JSON document
	ErrInvalidJSON = errors.New("invalid flow JSON")
	// ErrInvalidLink is returned when a link refers to a missing or wrong-kind node
	ErrInvalidLink = errors.New("invalid node link")
	// ErrNodeNotFound is returned when a lookup matches no node of the flow
	ErrNodeNotFound = errors.New("node not found")
)
