package pipeline

// Accumulator collects the client-facing errors and warnings of one run.
type Accumulator struct {
	errors   []string
	warnings []string
}

// AddError records a failure that will turn the run into FAIL.
func (a *Accumulator) AddError(message string) {
	a.errors = append(a.errors, message)
}

// AddWarning records a non-fatal problem.
func (a *Accumulator) AddWarning(message string) {
	a.warnings = append(a.warnings, message)
}

// HasErrors reports whether any error has been recorded.
func (a *Accumulator) HasErrors() bool {
	return len(a.errors) > 0
}

// Errors returns a copy of the recorded errors.
func (a *Accumulator) Errors() []string {
	return append([]string{}, a.errors...)
}

// Warnings returns a copy of the recorded warnings.
func (a *Accumulator) Warnings() []string {
	return append([]string{}, a.warnings...)
}
