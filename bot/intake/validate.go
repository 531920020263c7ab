package intake

import (
	"slices"
	"strings"
)

// ValidateName accepts any text that is not blank and returns it trimmed.
func ValidateName(text string) (string, error) {
	return nonEmpty(StateName, text)
}

// ValidateSubject accepts any text that is not blank and returns it trimmed.
func ValidateSubject(text string) (string, error) {
	return nonEmpty(StateSubject, text)
}

// ValidateCategory accepts text equal to one of the catalog categories.
func ValidateCategory(cat Catalog, text string) (string, error) {
	return oneOf(StateMaterialType, cat.Categories, text)
}

// ValidateSemester accepts text equal to one of the catalog semesters.
func ValidateSemester(cat Catalog, text string) (string, error) {
	return oneOf(StateSemester, cat.Semesters, text)
}

// Extension returns the lower-cased text after the last dot of name, or ""
// when name has no dot.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// CheckAttachment accepts an attachment whose extension is allowed for category.
func CheckAttachment(cat Catalog, category string, att *Attachment) error {
	if att == nil || strings.TrimSpace(att.FileName) == "" {
		return &ValidationError{State: StateFile, Reason: ReasonUnsupported, Err: ErrUnsupportedInput}
	}
	allowed := cat.Extensions(category)
	ext := Extension(att.FileName)
	if ext == "" || !slices.Contains(allowed, ext) {
		return &ValidationError{State: StateFile, Reason: ReasonExtension, Allowed: allowed}
	}
	return nil
}

func nonEmpty(state State, text string) (string, error) {
	v := strings.TrimSpace(text)
	if v == "" {
		return "", &ValidationError{State: state, Reason: ReasonEmpty}
	}
	return v, nil
}

func oneOf(state State, choices []string, text string) (string, error) {
	v := strings.TrimSpace(text)
	if !slices.Contains(choices, v) {
		return "", &ValidationError{State: state, Reason: ReasonNotAChoice}
	}
	return v, nil
}
