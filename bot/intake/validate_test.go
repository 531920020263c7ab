package intake

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"notes.pdf":       "pdf",
		"report.PDF":      "pdf",
		"deck.PpTx":       "pptx",
		"archive.tar.gz":  "gz",
		"README":          "",
		"":                "",
		"trailing.":       "",
		".hidden":         "hidden",
		"my notes v2.pdf": "pdf",
	}
	for name, want := range cases {
		assert.Equal(t, want, Extension(name), name)
	}
}

func TestValidateChoices(t *testing.T) {
	cat := DefaultCatalog()

	got, err := ValidateCategory(cat, " Exam Papers ")
	require.NoError(t, err)
	assert.Equal(t, "Exam Papers", got)

	_, err = ValidateCategory(cat, "exam papers")
	assert.Equal(t, ReasonNotAChoice, Reason(err))

	got, err = ValidateSemester(cat, "6th")
	require.NoError(t, err)
	assert.Equal(t, "6th", got)

	_, err = ValidateSemester(cat, "9th")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, StateSemester, ve.State)
}

func TestValidateFreeText(t *testing.T) {
	got, err := ValidateName("  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got)

	_, err = ValidateName("\n\t ")
	assert.Equal(t, ReasonEmpty, Reason(err))

	_, err = ValidateSubject("")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, StateSubject, ve.State)
}

func TestCheckAttachment(t *testing.T) {
	cat := DefaultCatalog()

	require.NoError(t, CheckAttachment(cat, "Notes", &Attachment{FileName: "report.PDF"}))
	require.NoError(t, CheckAttachment(cat, "Presentation", &Attachment{FileName: "deck.pptx"}))

	err := CheckAttachment(cat, "Presentation", &Attachment{FileName: "report.pdf"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonExtension, ve.Reason)
	assert.Equal(t, []string{"pptx"}, ve.Allowed)
	assert.Contains(t, err.Error(), "pptx")

	for _, att := range []*Attachment{nil, {}, {FileName: "  "}} {
		err := CheckAttachment(cat, "Notes", att)
		assert.True(t, errors.Is(err, ErrUnsupportedInput))
		assert.Equal(t, ReasonUnsupported, Reason(err))
	}

	err = CheckAttachment(cat, "Notes", &Attachment{FileName: "noext"})
	assert.Equal(t, ReasonExtension, Reason(err))
}

func TestRecordWellFormed(t *testing.T) {
	cat := DefaultCatalog()
	rec := Record{
		Name:       "Alice",
		Category:   "Presentation",
		Subject:    "Physics",
		Semester:   "2nd",
		Attachment: &Attachment{FileName: "deck.pptx"},
	}
	assert.True(t, rec.WellFormed(cat))

	wrong := rec
	wrong.Attachment = &Attachment{FileName: "deck.pdf"}
	assert.False(t, wrong.WellFormed(cat))

	missing := rec
	missing.Subject = ""
	assert.False(t, missing.WellFormed(cat))
}

func TestDeliveryErrorUnwraps(t *testing.T) {
	cause := errors.New("forbidden")
	err := error(&DeliveryError{Step: StepSummary, Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "summary")
	assert.Empty(t, Reason(err))
}
