// Package inventory defines the AWS Config inventory record as read from a
// configuration snapshot and the rule that routes it to an index.
package inventory

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

// Field names used on records.
const (
	FieldResourceType    = "resourceType"
	FieldRegion          = "awsRegion"
	FieldResourceID      = "resourceId"
	FieldSnapshotTimeISO = "snapshotTimeIso"
	ItemsKey             = "configurationItems"
)

// Record is one configuration item of a snapshot. Its shape is owned by AWS
// Config; only the routing fields are required.
type Record map[string]any

// Routing is the destination of a record: index name and document type.
type Routing struct {
	Index   string
	DocType string
}

func (r Routing) String() string {
	return r.Index + "/" + r.DocType
}

// Route derives the destination of rec as (lower(resourceType),
// lower(awsRegion)). Both fields must be non-empty strings.
func Route(rec Record) (Routing, error) {
	resourceType, err := requiredString(rec, FieldResourceType)
	if err != nil {
		return Routing{}, err
	}
	region, err := requiredString(rec, FieldRegion)
	if err != nil {
		return Routing{}, err
	}
	return Routing{
		Index:   strings.ToLower(resourceType),
		DocType: strings.ToLower(region),
	}, nil
}

// DocumentID returns the id a record is upserted under, or "" when the record
// carries no resourceId and the engine should assign one.
func (rec Record) DocumentID() string {
	id, _ := rec[FieldResourceID].(string)
	return strings.TrimSpace(id)
}

func requiredString(rec Record, field string) (string, error) {
	raw, ok := rec[field]
	if !ok || raw == nil {
		return "", apperrors.Newf(apperrors.ErrMalformedRecord, 0, "missing %s", field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", apperrors.Newf(apperrors.ErrMalformedRecord, 0, "%s must be a string, got %T", field, raw)
	}
	if strings.TrimSpace(s) == "" {
		return "", apperrors.Newf(apperrors.ErrMalformedRecord, 0, "%s is empty", field)
	}
	return s, nil
}

// FromValue converts a decoded JSON value to a Record.
func FromValue(v any) (Record, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrMalformedRecord, 0, "configuration item must be an object, got %s", typeName(v))
	}
	return Record(m), nil
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
