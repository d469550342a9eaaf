package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound            = errors.New("catalog entry not found")
	ErrAlreadyExists       = errors.New("catalog entry already exists")
	ErrUnknownDocumentType = errors.New("unknown document type")
)

// ValidationError carries per-field validator tags.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return "invalid catalog entry: " + strings.Join(parts, ", ")
}
