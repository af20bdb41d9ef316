package diagnosis

// Stage is one phase of the staged search.
type Stage string

const (
	StageA Stage = "A" // tenant's own issues
	StageB Stage = "B" // other tenants' problems
	StageC Stage = "C" // AI diagnosis
)

// Next returns the stage tried after s is exhausted, or "" after Stage C.
func (s Stage) Next() Stage {
	switch s {
	case StageA:
		return StageB
	case StageB:
		return StageC
	default:
		return ""
	}
}
