package models

// ParsePolicy controls what happens to a value that fails type coercion:
// null it out or drop the whole row. One policy per run, never mixed.
type ParsePolicy string

const (
	PolicyNull ParsePolicy = "null"
	PolicyDrop ParsePolicy = "drop"
)

type PathSelector string

const (
	SelectAll            PathSelector = "all"
	SelectData           PathSelector = "data"
	SelectVisualisations PathSelector = "visualisations"
)

// Kinds expands the selector into concrete path kinds.
func (s PathSelector) Kinds() []PathKind {
	switch s {
	case SelectData:
		return []PathKind{PathData}
	case SelectVisualisations:
		return []PathKind{PathVisualisations}
	default:
		return []PathKind{PathData, PathVisualisations}
	}
}

func (s PathSelector) Valid() bool {
	switch s {
	case SelectAll, SelectData, SelectVisualisations:
		return true
	}
	return false
}

// LoadOptions configures the transform/load stage.
type LoadOptions struct {
	SelectedDetail  bool
	IncludeCalendar bool
	Policy          ParsePolicy
}

func (o LoadOptions) EffectivePolicy() ParsePolicy {
	if o.Policy == "" {
		return PolicyNull
	}
	return o.Policy
}

// RunOptions configures a full pipeline run.
type RunOptions struct {
	DestRoot string
	Paths    PathSelector
	Load     LoadOptions
	Force    bool
	Workers  int
}
