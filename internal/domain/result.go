package domain

// RunResult aggregates the outcome of one walk, including nested walks merged
// into it.
type RunResult struct {
	Success   bool
	Processed []string
	Failed    []string
}

func NewRunResult() RunResult {
	return RunResult{Success: true, Processed: []string{}, Failed: []string{}}
}

func (r *RunResult) Merge(other RunResult) {
	r.Success = r.Success && other.Success
	r.Processed = append(r.Processed, other.Processed...)
	r.Failed = append(r.Failed, other.Failed...)
}

// Outcome is the per-root report produced by a scan-and-apply pass.
type Outcome struct {
	Root      string
	Tags      TagSet
	Result    RunResult
	Directive string
	Err       error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Result.Success
}
