package model

// Organization is the tenant whose configuration this subsystem manages.
// Organizations are created externally; the console loads one into the
// subsystem at session start and never deletes it.
type Organization struct {
	ID   string
	Name string
}
