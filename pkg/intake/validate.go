package intake

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bookbot/pkg/models"
)

// Rejection is a user-input failure. It is recovered locally by re-issuing
// the same prompt and never surfaced as a system error.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Reject builds a Rejection with a formatted reason.
func Reject(format string, args ...interface{}) error {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is (or wraps) a Rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// IsSkip reports whether the input is the explicit skip token for an
// optional field. The stored value is then empty, never the token itself.
func IsSkip(input string) bool {
	t := strings.ToLower(strings.TrimSpace(input))
	return t == "-" || t == "skip"
}

// RequiredText trims the input and rejects empty answers.
func RequiredText(input string) (string, error) {
	t := strings.TrimSpace(input)
	if t == "" {
		return "", Reject("This field cannot be empty. Try again.")
	}
	return t, nil
}

// OptionalText trims the input; the skip token becomes an empty value.
func OptionalText(input string) string {
	if IsSkip(input) {
		return ""
	}
	return strings.TrimSpace(input)
}

func digits(input string) (int, error) {
	t := strings.TrimSpace(input)
	if t == "" {
		return 0, Reject("Enter a number.")
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return 0, Reject("Enter digits only.")
		}
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, Reject("Enter a number.")
	}
	return n, nil
}

// YearValue accepts a digits-only year in [1001, 2030].
func YearValue(input string) (int, error) {
	n, err := digits(input)
	if err != nil {
		return 0, Reject("The year must be a number between 1001 and 2030. Try again.")
	}
	if n < 1001 || n > 2030 {
		return 0, Reject("The year must be a number between 1001 and 2030. Try again.")
	}
	return n, nil
}

// PositiveCount accepts a digits-only integer greater than zero.
func PositiveCount(input string) (int, error) {
	n, err := digits(input)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, Reject("Enter a whole number greater than zero.")
	}
	return n, nil
}

// CharCountValue accepts a non-negative integer. Whitespace inside the
// input ("850 000") is stripped before validation.
func CharCountValue(input string) (int, error) {
	compact := strings.Join(strings.Fields(input), "")
	n, err := digits(compact)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, Reject("Enter a whole number, zero or more.")
	}
	return n, nil
}

// SeriesNumberValue accepts a digits-only integer, zero or more.
func SeriesNumberValue(input string) (int, error) {
	return digits(input)
}

// PriorityValue accepts an integer in [1, 5].
func PriorityValue(input string) (int, error) {
	n, err := digits(input)
	if err != nil {
		return 0, Reject("Priority must be a number from 1 to 5. Try again.")
	}
	if n < 1 || n > 5 {
		return 0, Reject("Priority must be a number from 1 to 5. Try again.")
	}
	return n, nil
}

// FormatValue normalizes to exactly one of the closed format set.
func FormatValue(input string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(input))
	if f != models.FormatPhysical && f != models.FormatDigital {
		return "", Reject("The format must be 'physical' or 'digital'. Try again.")
	}
	return f, nil
}

// SourceValue normalizes to one of the closed source set. The skip token is
// allowed because source is optional; skipped is reported separately.
func SourceValue(input string) (value string, skipped bool, err error) {
	if IsSkip(input) {
		return "", true, nil
	}
	s := strings.ToLower(strings.TrimSpace(input))
	for _, known := range models.Sources {
		if s == known {
			return s, false, nil
		}
	}
	return "", false, Reject("The source must be one of: %s. Try again.", strings.Join(models.Sources, ", "))
}

// YesNo normalizes a binary answer. Anything else is rejected so the same
// prompt is re-issued with state unchanged.
func YesNo(input string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "yes", "y", "true", "1":
		return true, nil
	case "no", "n", "false", "0":
		return false, nil
	}
	return false, Reject("Please answer yes or no.")
}
