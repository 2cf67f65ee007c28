package domain

// DocumentType distinguishes the documents a test delegator emits.
type DocumentType string

const (
	DocumentTypeTest      DocumentType = "test"
	DocumentTypeStep      DocumentType = "step"
	DocumentTypeException DocumentType = "exception"
)

// StepStatus is the outcome recorded on a step document.
type StepStatus string

const (
	StepStatusPassed StepStatus = "passed"
	StepStatusFailed StepStatus = "failed"
)

// Document is one YAML document streamed by the test delegator.
// Data holds the document exactly as decoded.
type Document struct {
	Type DocumentType
	Data map[string]any
}

// payload returns the document's "payload" mapping, or nil.
func (d Document) payload() map[string]any {
	p, _ := d.Data["payload"].(map[string]any)
	return p
}

// StepName returns the name of a step document.
func (d Document) StepName() string {
	name, _ := d.payload()["name"].(string)
	return name
}

// StepStatus returns the status of a step document.
func (d Document) StepStatus() StepStatus {
	status, _ := d.payload()["status"].(string)
	return StepStatus(status)
}

// ErrorOutput is the structured output of a failed compilation.
type ErrorOutput map[string]any
