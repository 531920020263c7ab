// Package keyboard builds the reply and inline markups attached to prompts.
package keyboard

import (
	"slices"

	tele "gopkg.in/telebot.v4"
)

// CancelLabel is the text of the inline cancel button.
const CancelLabel = "❌ Cancel"

// RemoveKeyboard returns a markup that hides any reply keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// OneTimeChoices lays labels out perRow to a row as quick replies. Telegram
// hides the keyboard once a button is pressed; typed answers stay possible.
func OneTimeChoices(labels []string, perRow int) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	var rows []tele.Row
	for chunk := range slices.Chunk(labels, max(perRow, 1)) {
		row := make(tele.Row, len(chunk))
		for i, label := range chunk {
			row[i] = m.Text(label)
		}
		rows = append(rows, row)
	}
	m.Reply(rows...)
	return m
}

// SingleCancelMarkup returns an inline keyboard holding one cancel button
// whose callback unique is unique.
func SingleCancelMarkup(unique string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(m.Data(CancelLabel, unique)))
	return m
}
