package validation

import (
	"fmt"

	dErrors "credlife/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// Collection limits
const (
	// MaxMetadataEntries is the maximum number of metadata pairs on a submission.
	MaxMetadataEntries = 32

	// MaxFilterValues is the maximum number of kind or status filters per list query.
	MaxFilterValues = 10
)

// String length limits
const (
	MaxMetadataKeyLength   = 64
	MaxMetadataValueLength = 512
	MaxFileURILength       = 1024
	MaxReasonLength        = 1000
	MaxGraderRefLength     = 128
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckMetadata bounds the number and size of free-form metadata pairs.
func CheckMetadata(metadata map[string]string) error {
	if err := CheckSliceCount("metadata entries", len(metadata), MaxMetadataEntries); err != nil {
		return err
	}
	for k, v := range metadata {
		if k == "" {
			return dErrors.New(dErrors.CodeValidation, "metadata keys must not be empty")
		}
		if err := CheckStringLength("metadata key", k, MaxMetadataKeyLength); err != nil {
			return err
		}
		if err := CheckStringLength("metadata value", v, MaxMetadataValueLength); err != nil {
			return err
		}
	}
	return nil
}
