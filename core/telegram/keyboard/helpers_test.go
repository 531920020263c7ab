package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneTimeChoices(t *testing.T) {
	m := OneTimeChoices([]string{"Notes", "Exam Papers", "Presentation", "Other"}, 2)
	assert.True(t, m.OneTimeKeyboard)
	assert.True(t, m.ResizeKeyboard)
	require.Len(t, m.ReplyKeyboard, 2)
	assert.Equal(t, "Exam Papers", m.ReplyKeyboard[0][1].Text)
	assert.Equal(t, "Other", m.ReplyKeyboard[1][1].Text)
}

func TestOneTimeChoicesRows(t *testing.T) {
	sems := []string{"1st", "2nd", "3rd", "4th", "5th", "6th", "7th"}
	m := OneTimeChoices(sems, 3)
	require.Len(t, m.ReplyKeyboard, 3)
	assert.Len(t, m.ReplyKeyboard[2], 1)
	assert.Equal(t, "7th", m.ReplyKeyboard[2][0].Text)

	assert.Len(t, OneTimeChoices([]string{"a", "b"}, 0).ReplyKeyboard, 2)
}

func TestSingleCancelMarkup(t *testing.T) {
	m := SingleCancelMarkup("intake_cancel")
	require.Len(t, m.InlineKeyboard, 1)
	btn := m.InlineKeyboard[0][0]
	assert.Equal(t, CancelLabel, btn.Text)
	assert.Equal(t, "intake_cancel", btn.Unique)
}

func TestRemoveKeyboard(t *testing.T) {
	assert.True(t, RemoveKeyboard().RemoveKeyboard)
}
