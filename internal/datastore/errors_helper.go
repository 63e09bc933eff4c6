package datastore

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, table string, context ...any) error {
	category := errors.CategoryDatabase
	priority := errors.PriorityMedium
	switch {
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrDuplicatedKey):
		category = errors.CategoryConflict
	case isDatabaseCorruption(err):
		priority = errors.PriorityCritical
	}

	builder := errors.New(fmt.Errorf("datastore: %s on %s: %w", operation, table, err)).
		Component("datastore").
		Category(category).
		Priority(priority).
		Context("operation", operation).
		Context("table", table)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error for a rejected query or argument
func validationError(message, field string, value any) error {
	return errors.Newf("datastore: %s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// notFoundError creates a not found error
func notFoundError(resource string, identifier any) error {
	return errors.Newf("datastore: %s %v not found", resource, identifier).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Priority(errors.PriorityLow).
		Context("resource", resource).
		Context("identifier", fmt.Sprintf("%v", identifier)).
		Build()
}

// IsStoreError reports whether err is a failure of the underlying database,
// as opposed to a validation or not-found result.
func IsStoreError(err error) bool {
	return errors.IsCategory(err, errors.CategoryDatabase) || errors.IsCategory(err, errors.CategoryConflict)
}

func isDatabaseCorruption(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "malformed") ||
		strings.Contains(errStr, "corrupt") ||
		strings.Contains(errStr, "file is not a database")
}
