package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/intakebot/core/session"
)

// State is a step of the dialogue.
type State int

const (
	// StateNone means there is no session; it is never stored.
	StateNone State = iota
	StateName
	StateMaterialType
	StateSubject
	StateSemester
	StateFile
)

func (s State) String() string {
	switch s {
	case StateName:
		return "NAME"
	case StateMaterialType:
		return "MATERIAL_TYPE"
	case StateSubject:
		return "SUBJECT"
	case StateSemester:
		return "SEMESTER"
	case StateFile:
		return "FILE"
	default:
		return "END"
	}
}

// Identity keys a conversation: one user in one chat.
type Identity struct {
	UserID int64
	ChatID int64
}

func (id Identity) String() string {
	return fmt.Sprintf("%d:%d", id.ChatID, id.UserID)
}

// ContentRef points at an uploaded file. The engine never looks inside it;
// it is handed back to the Deliverer unchanged.
type ContentRef struct {
	ChatID    int64
	MessageID int
	FileID    string
	FileSize  int64
	MIME      string
}

// Attachment is a file declared by the submitter.
type Attachment struct {
	FileName string
	Ref      ContentRef
}

// Record holds the answers collected so far.
type Record struct {
	Name       string
	Category   string
	Subject    string
	Semester   string
	Attachment *Attachment
}

// WellFormed reports whether every field is set and the attachment extension
// is allowed for the category.
func (r Record) WellFormed(cat Catalog) bool {
	if r.Name == "" || r.Category == "" || r.Subject == "" || r.Semester == "" || r.Attachment == nil {
		return false
	}
	return CheckAttachment(cat, r.Category, r.Attachment) == nil
}

// Session is the per-identity dialogue state.
type Session struct {
	Identity  Identity
	State     State
	Record    Record
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store keeps at most one Session per Identity.
type Store = session.Store[Identity, *Session]

// NewStore returns an empty Store.
func NewStore(opts ...session.Option) *Store {
	return session.New[Identity, *Session](opts...)
}

// EventKind tells what an inbound Event carries.
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventAttachment
)

// Commands understood by the engine.
const (
	CommandStart  = "start"
	CommandCancel = "cancel"
)

// Event is one inbound message of a conversation.
// Attachment is nil or has an empty FileName when the message carried media
// the engine cannot accept.
type Event struct {
	Kind       EventKind
	Identity   Identity
	Text       string
	Command    string
	Attachment *Attachment
}

// TextEvent builds a text Event.
func TextEvent(id Identity, text string) Event {
	return Event{Kind: EventText, Identity: id, Text: text}
}

// CommandEvent builds a command Event; a leading slash is ignored.
func CommandEvent(id Identity, name string) Event {
	return Event{Kind: EventCommand, Identity: id, Command: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "/")}
}

// AttachmentEvent builds an attachment Event.
func AttachmentEvent(id Identity, att *Attachment) Event {
	return Event{Kind: EventAttachment, Identity: id, Attachment: att}
}

// Prompt is a message the transport shows to the submitter. Choices are
// rendered as quick replies; Cancelable prompts without choices offer a cancel button.
// ClearKeyboard marks the first prompt after a choice step: the quick replies
// of that step must be taken down.
type Prompt struct {
	Text          string
	Choices       []string
	Cancelable    bool
	ClearKeyboard bool
}

// Reply is the result of handling one Event.
type Reply struct {
	Prompts []Prompt
	// State is the state after the event; StateNone once the session is gone.
	State State
	// Submission is set when a file was accepted and delivery was attempted.
	Submission *Submission
	// DeliveryErr is the delivery failure, if any. It is never shown to the user.
	DeliveryErr error
}

// Submission is a well-formed record frozen at delivery time.
type Submission struct {
	ID          uuid.UUID
	Identity    Identity
	Record      Record
	SubmittedAt time.Time
}

// FileName returns the declared attachment name.
func (s Submission) FileName() string {
	if s.Record.Attachment == nil {
		return ""
	}
	return s.Record.Attachment.FileName
}

// Summary renders the operator notice sent after the forwarded file.
func (s Submission) Summary() string {
	return fmt.Sprintf(summaryFormat,
		s.Record.Category,
		s.Record.Name,
		s.Record.Subject,
		s.Record.Semester,
		s.FileName(),
		s.ID,
	)
}
