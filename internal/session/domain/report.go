package domain

// StepStatus tags the outcome of one teardown step.
type StepStatus string

const (
	StepOk      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepResult is one entry in a teardown report.
type StepResult struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// TeardownReport records the outcome of every teardown step. Failed steps do
// not abort teardown; callers inspect the report instead of catching errors.
type TeardownReport struct {
	PurchaseID string       `json:"purchase_id"`
	Steps      []StepResult `json:"steps"`
}

func (r *TeardownReport) Ok(step string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Status: StepOk})
}

func (r *TeardownReport) Skipped(step, reason string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Status: StepSkipped, Reason: reason})
}

func (r *TeardownReport) Failed(step, reason string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Status: StepFailed, Reason: reason})
}

// HasFailures reports whether any step failed.
func (r *TeardownReport) HasFailures() bool {
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}
