// Package validator checks configuration items before they are indexed and
// reports every offending field at once.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/inventory"
	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

// maxIDLength is the longest document id the index engine accepts.
const maxIDLength = 512

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// Unwrap makes every ValidationError an ErrMalformedRecord.
func (e *ValidationError) Unwrap() error {
	return apperrors.ErrMalformedRecord
}

// ValidateRecord checks the routing fields of rec and, when present, its
// resourceId.
func ValidateRecord(rec inventory.Record) error {
	errs := make(map[string]string)
	for _, field := range []string{inventory.FieldResourceType, inventory.FieldRegion} {
		if msg := checkString(rec, field); msg != "" {
			errs[field] = msg
		}
	}
	if raw, ok := rec[inventory.FieldResourceID]; ok && raw != nil {
		id, isString := raw.(string)
		switch {
		case !isString:
			errs[inventory.FieldResourceID] = fmt.Sprintf("must be a string, got %T", raw)
		case len(id) > maxIDLength:
			errs[inventory.FieldResourceID] = fmt.Sprintf("must be at most %d characters", maxIDLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkString(rec inventory.Record, field string) string {
	raw, ok := rec[field]
	if !ok || raw == nil {
		return "is required"
	}
	s, ok := raw.(string)
	if !ok {
		return fmt.Sprintf("must be a string, got %T", raw)
	}
	if strings.TrimSpace(s) == "" {
		return "must not be empty"
	}
	return ""
}
