// Package reference derives content-addressed identifiers for a job's
// resources.
//
// A reference is the hex MD5 of the job label followed by each component
// in order, with no separators. Identical inputs always yield the identical
// reference, so a retried delivery of the same logical event carries the
// same reference as the original attempt.
package reference

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/roach88/testworker/internal/domain"
)

// Create computes the reference for a job label and ordered components.
// The bytes are hashed as given, so a collector holding the same label,
// path and step name derives the same reference.
func Create(jobLabel string, components ...string) string {
	h := md5.New()
	h.Write([]byte(jobLabel))
	for _, c := range components {
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Resource builds a labelled reference for a component path under a job.
// The label is the last component, or the job label when there are none.
func Resource(jobLabel string, components ...string) domain.ResourceReference {
	label := jobLabel
	if len(components) > 0 {
		label = components[len(components)-1]
	}
	return domain.ResourceReference{
		Label:     label,
		Reference: Create(jobLabel, components...),
	}
}

// ForSteps builds one reference per step name of a test source.
func ForSteps(jobLabel, source string, stepNames []string) []domain.ResourceReference {
	refs := make([]domain.ResourceReference, 0, len(stepNames))
	for _, name := range stepNames {
		refs = append(refs, Resource(jobLabel, source, name))
	}
	return refs
}

// ForTests builds one reference per test path.
func ForTests(jobLabel string, testPaths []string) []domain.ResourceReference {
	refs := make([]domain.ResourceReference, 0, len(testPaths))
	for _, path := range testPaths {
		refs = append(refs, Resource(jobLabel, path))
	}
	return refs
}
