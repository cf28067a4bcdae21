package scans

// RunRequest untuk Runner
type RunRequest struct {
	Tool       string
	TargetType TargetType
	Target     string
}

// RunResult hasil dari Runner
type RunResult struct {
	Results    []map[string]any
	Meta       map[string]any
	Raw        []byte
	DurationMS int64
}
