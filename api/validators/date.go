package validators

import (
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
)

const dateOnlyLayout = "2006-01-02"

// ParseDueDate accepts a calendar date (YYYY-MM-DD) or an RFC3339 timestamp.
// dateOnly reports the first form; the returned time then only carries the
// date, at midnight UTC.
func ParseDueDate(field, raw string) (due time.Time, dateOnly bool, err error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{field: "is required"})
	}
	if t, err := time.ParseInLocation(dateOnlyLayout, value, time.UTC); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{field: "must be a date (YYYY-MM-DD) or RFC3339 timestamp"})
	}
	return t.UTC(), false, nil
}
