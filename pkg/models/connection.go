package models

// ConnectionType is the kind of directed edge between two steps.
type ConnectionType string

const (
	ConnectionTypeSequential  ConnectionType = "sequential"
	ConnectionTypeConditional ConnectionType = "conditional"
	ConnectionTypeParallel    ConnectionType = "parallel"
	ConnectionTypeChoice      ConnectionType = "choice"
	ConnectionTypeFallback    ConnectionType = "fallback"
	ConnectionTypeLoop        ConnectionType = "loop"
)

// KnownConnectionTypes lists every valid connection type.
var KnownConnectionTypes = []ConnectionType{
	ConnectionTypeSequential,
	ConnectionTypeConditional,
	ConnectionTypeParallel,
	ConnectionTypeChoice,
	ConnectionTypeFallback,
	ConnectionTypeLoop,
}

// Valid reports whether t is one of the known connection types.
func (t ConnectionType) Valid() bool {
	for _, k := range KnownConnectionTypes {
		if t == k {
			return true
		}
	}

	return false
}

// Connection is a directed edge between two steps of the same definition.
// Cycles are legal only through loop connections.
type Connection struct {
	ID           string         `json:"id"`
	SourceStepID string         `json:"source_step" validate:"required"`
	TargetStepID string         `json:"target_step" validate:"required"`
	Type         ConnectionType `json:"connection_type" validate:"required"`
	Condition    *Condition     `json:"condition,omitempty"`
	IsDefault    bool           `json:"is_default"`
	DisplayOrder int            `json:"display_order"`
}
