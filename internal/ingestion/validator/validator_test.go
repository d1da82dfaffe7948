package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/inventory"
	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

func TestValidateRecord(t *testing.T) {
	ok := inventory.Record{"resourceType": "AWS::EC2::Instance", "awsRegion": "us-east-1", "resourceId": "i-1"}
	assert.NoError(t, ValidateRecord(ok))

	noID := inventory.Record{"resourceType": "AWS::EC2::Instance", "awsRegion": "us-east-1"}
	assert.NoError(t, ValidateRecord(noID))
}

func TestValidateRecordReportsEveryField(t *testing.T) {
	err := ValidateRecord(inventory.Record{"awsRegion": " ", "resourceId": 42.0})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{
		"resourceType": "is required",
		"awsRegion":    "must not be empty",
		"resourceId":   "must be a string, got float64",
	}, verr.Fields)
	assert.Equal(t, "awsRegion: must not be empty; resourceId: must be a string, got float64; resourceType: is required", err.Error())
}

func TestValidateRecordLongID(t *testing.T) {
	rec := inventory.Record{"resourceType": "AWS::S3::Bucket", "awsRegion": "eu-west-1", "resourceId": strings.Repeat("a", maxIDLength+1)}
	var verr *ValidationError
	require.ErrorAs(t, ValidateRecord(rec), &verr)
	assert.Contains(t, verr.Fields, "resourceId")
}
