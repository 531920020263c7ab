package intake

import (
	"fmt"
	"strings"
)

const (
	msgWelcome         = "👋 Hi! What's your name?"
	msgNameRetry       = "❗ Please tell me your name."
	msgAskCategory     = "📝 %s, what kind of material would you like to share?"
	msgCategoryRetry   = "❗ Please choose a valid material type using the buttons below:"
	msgAskSubject      = "📚 Okay, and this is for which subject exactly?"
	msgSubjectRetry    = "❗ Please type the subject name."
	msgAskSemester     = "🎓 And this would come under which semester?"
	msgSemesterRetry   = "❌ Please select a valid semester from the buttons."
	msgAskFile         = "📤 Now please upload the file (%s only)."
	msgUnsupported     = "❌ Unsupported file format!\nOnly %s files are accepted.\nPlease send a valid document."
	msgWrongExtension  = "❌ Only %s files are allowed for %s.\nPlease upload a %s file."
	msgAccepted        = "✅ File format accepted! Processing your submission..."
	msgSubmitted       = "🎉 File successfully submitted!\nThank you for your contribution!"
	msgSubmitMore      = "🔁 Want to share more? Just type /start again to make another contribution!"
	msgDeliveryFailed  = "❌ Oops, something went wrong while processing your file.\nPlease type /start to try again."
	msgCancelled       = "🚫 Operation cancelled. Use /start to try again."
	msgNothingToCancel = "ℹ️ There is nothing to cancel. Use /start to share study material."
	msgIdle            = "👋 Type /start to share study material."

	// MsgExpired is sent when an idle session is dropped by the TTL sweep.
	MsgExpired = "⌛ Your submission timed out. Use /start to begin again."

	summaryFormat = "📝 New %s submission\n👤 Name: %s\n📘 Subject: %s\n📅 Semester: %s\n📂 File: %s\n🆔 %s"
)

// dotted renders extensions as ".pdf or .pptx".
func dotted(exts []string) string {
	parts := make([]string, len(exts))
	for i, ext := range exts {
		parts[i] = "." + ext
	}
	return strings.Join(parts, " or ")
}

// upper renders extensions as "PDF or PPTX".
func upper(exts []string) string {
	return strings.ToUpper(strings.Join(exts, " or "))
}

func welcomePrompt() Prompt {
	return Prompt{Text: msgWelcome, Cancelable: true}
}

func categoryPrompt(cat Catalog, name string) Prompt {
	return Prompt{Text: fmt.Sprintf(msgAskCategory, name), Choices: cat.Categories}
}

func subjectPrompt() Prompt {
	return Prompt{Text: msgAskSubject, Cancelable: true, ClearKeyboard: true}
}

func semesterPrompt(cat Catalog) Prompt {
	return Prompt{Text: msgAskSemester, Choices: cat.Semesters}
}

func filePrompt(cat Catalog, category string) Prompt {
	return Prompt{Text: fmt.Sprintf(msgAskFile, upper(cat.Extensions(category))), Cancelable: true, ClearKeyboard: true}
}

func unsupportedPrompt(cat Catalog, category string) Prompt {
	return Prompt{Text: fmt.Sprintf(msgUnsupported, dotted(cat.Extensions(category))), Cancelable: true}
}

func wrongExtensionPrompt(category string, allowed []string) Prompt {
	return Prompt{
		Text:       fmt.Sprintf(msgWrongExtension, upper(allowed), category, dotted(allowed)),
		Cancelable: true,
	}
}

// retryPrompt asks again for the answer expected in the session's state.
func retryPrompt(cat Catalog, sess *Session) Prompt {
	switch sess.State {
	case StateName:
		return Prompt{Text: msgNameRetry, Cancelable: true}
	case StateMaterialType:
		return Prompt{Text: msgCategoryRetry, Choices: cat.Categories}
	case StateSubject:
		return Prompt{Text: msgSubjectRetry, Cancelable: true}
	case StateSemester:
		return Prompt{Text: msgSemesterRetry, Choices: cat.Semesters}
	default:
		return unsupportedPrompt(cat, sess.Record.Category)
	}
}

func text(s string) Prompt {
	return Prompt{Text: s}
}
