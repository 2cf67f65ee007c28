package api

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed job.cue
var jobSchema string

// ValidationError describes one field that failed schema validation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation error codes.
const (
	CodeInvalidJSON = "E_INVALID_JSON"
	CodeSchema      = "E_SCHEMA"
)

// Validator checks request bodies against a CUE definition.
// A cue.Context is not safe for concurrent use, so calls are serialized.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewJobValidator compiles the job submission schema.
func NewJobValidator() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(jobSchema, cue.Filename("job.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile job schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Job"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("compile job schema: %w", err)
	}
	return &Validator{ctx: ctx, schema: def}, nil
}

// Validate checks a JSON body. It returns nil when the body conforms.
func (v *Validator) Validate(body []byte) []ValidationError {
	expr, err := cuejson.Extract("request", body)
	if err != nil {
		return []ValidationError{{Field: "body", Message: "request body is not valid JSON", Code: CodeInvalidJSON}}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	data := v.ctx.BuildExpr(expr)
	if err := data.Err(); err != nil {
		return []ValidationError{{Field: "body", Message: err.Error(), Code: CodeInvalidJSON}}
	}
	if err := v.schema.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, ValidationError{
			Field:   fieldOf(e.Path()),
			Message: fmt.Sprintf(format, args...),
			Code:    CodeSchema,
		})
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Field: "body", Message: err.Error(), Code: CodeSchema})
	}
	return out
}

// fieldOf drops definition selectors from a CUE path.
func fieldOf(path []string) string {
	parts := make([]string, 0, len(path))
	for _, p := range path {
		if strings.HasPrefix(p, "#") {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "body"
	}
	return strings.Join(parts, ".")
}
