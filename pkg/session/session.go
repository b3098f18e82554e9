// Package session routes one user's conversation: slash commands start
// intakes or pending-id prompts, everything else feeds the active intake
// machine. One Session per chat id; a per-session mutex serializes message
// handling so two physically concurrent messages cannot interleave an
// intake.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"bookbot/pkg/intake"
	"bookbot/pkg/isbn"
	"bookbot/pkg/models"
	"bookbot/pkg/pipeline"
	"bookbot/pkg/report"
	"bookbot/pkg/store"
)

// Deps bundles the collaborators every session needs.
type Deps struct {
	Store    *store.Store
	Pipeline *pipeline.Pipeline
	Reporter *report.Reporter
	ISBN     *isbn.Client
}

// Manager keys sessions by chat id.
type Manager struct {
	mu       sync.Mutex
	deps     Deps
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

func (m *Manager) Session(chatID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok {
		s = &Session{ID: chatID, deps: m.deps}
		m.sessions[chatID] = s
	}
	return s
}

// Push queues outbound messages (e.g. the scheduled monthly digest) for a
// chat; they are delivered ahead of the next reply.
func (m *Manager) Push(chatID string, messages []string) {
	s := m.Session(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, messages...)
}

// timeNow is swapped in tests.
var timeNow = time.Now

type pendingAction int

const (
	pendingNone pendingAction = iota
	pendingSearch
	pendingISBN
	pendingBuyDelete
	pendingBuyMove
	pendingBuyPriorityID
	pendingBuyPriorityValue
	pendingReadDelete
	pendingReadDone
	pendingReadPriorityID
	pendingReadPriorityValue
	pendingEventBookID
)

// Session is one user's conversation state: at most one active intake
// machine or one pending-id prompt at a time.
type Session struct {
	ID   string
	mu   sync.Mutex
	deps Deps

	machine *intake.Machine
	mode    string // "book", "tobuy" or "toread" while a machine is active

	pending        pendingAction
	pendingEvent   string // event type awaited by pendingEventBookID
	pendingEntryID uint   // entry id awaited by the priority-value prompts

	outbox []string
}

const helpText = `Commands:
/add — add a book step by step
/isbn — add a physical book by ISBN
/search — search the library
/summary — library statistics
/buylist — the to-buy list
/tobuy — add a to-buy entry
/readlist — the to-read list
/toread — put a library book on the to-read list
/started /finished /reviewed — log a reading event
/log — recent activity
/report — this month's report
/cancel — drop whatever is in progress`

// Handle processes one inbound message and returns the outbound replies.
func (s *Session) Handle(text string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	if len(s.outbox) > 0 {
		out = append(out, s.outbox...)
		s.outbox = nil
	}

	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "/"):
		out = append(out, s.command(text)...)
	case s.pending != pendingNone:
		out = append(out, s.handlePending(text)...)
	case s.machine != nil:
		out = append(out, s.feedMachine(text)...)
	default:
		out = append(out, "Nothing is in progress. "+helpText)
	}
	return out
}

// clear drops any in-flight intake or pending prompt. A new command
// implicitly cancels an abandoned conversation.
func (s *Session) clear() {
	if s.machine != nil {
		s.machine.Reset()
		s.machine = nil
	}
	s.mode = ""
	s.pending = pendingNone
	s.pendingEvent = ""
	s.pendingEntryID = 0
}

func (s *Session) command(text string) []string {
	s.clear()

	switch strings.Fields(text)[0] {
	case "/start", "/help":
		return []string{"Welcome to your library.", helpText}

	case "/cancel":
		return []string{"Cancelled, nothing was saved."}

	case "/add":
		return s.startMachine("book", s.bookFlow(), nil)

	case "/tobuy":
		return s.startMachine("tobuy", intake.NewBuyFlow(), nil)

	case "/toread":
		return s.startMachine("toread", intake.NewReadFlow(s.deps.Store.SearchBooksNotInToRead), nil)

	case "/isbn":
		s.pending = pendingISBN
		return []string{"Enter the ISBN (10 or 13 digits):"}

	case "/search":
		s.pending = pendingSearch
		return []string{"Enter an author, title or series:"}

	case "/summary":
		txt, err := s.deps.Reporter.SummaryText()
		if err != nil {
			return failed(err)
		}
		return []string{txt}

	case "/log":
		txt, err := s.deps.Reporter.LogTailText()
		if err != nil {
			return failed(err)
		}
		return []string{txt}

	case "/report":
		since := report.MonthStart(timeNow())
		digest, err := s.deps.Reporter.CombinedDigest(since, timeNow())
		if err != nil {
			return failed(err)
		}
		return report.SplitMessage(digest, report.DefaultMessageBudget)

	case "/buylist":
		return s.buyListText()

	case "/readlist":
		return s.readListText()

	case "/buy_del":
		s.pending = pendingBuyDelete
		return []string{"Enter the ID of the entry to delete:"}

	case "/buy_move":
		s.pending = pendingBuyMove
		return []string{"Enter the ID of the entry to move into the library:"}

	case "/buy_prio":
		s.pending = pendingBuyPriorityID
		return []string{"Enter the ID of the entry to re-prioritize:"}

	case "/read_del":
		s.pending = pendingReadDelete
		return []string{"Enter the ID of the to-read entry to delete:"}

	case "/read_done":
		s.pending = pendingReadDone
		return []string{"Enter the ID of the to-read entry to mark as read:"}

	case "/read_prio":
		s.pending = pendingReadPriorityID
		return []string{"Enter the ID of the to-read entry to re-prioritize:"}

	case "/started":
		s.pending, s.pendingEvent = pendingEventBookID, models.EventStartedReading
		return []string{"Enter the book ID:"}

	case "/finished":
		s.pending, s.pendingEvent = pendingEventBookID, models.EventFinishedReading
		return []string{"Enter the book ID:"}

	case "/reviewed":
		s.pending, s.pendingEvent = pendingEventBookID, models.EventReviewed
		return []string{"Enter the book ID:"}
	}
	return []string{"Unknown command.", helpText}
}

func (s *Session) bookFlow() *intake.BookFlow {
	return intake.NewBookFlow(func() []string {
		genres, err := s.deps.Store.DistinctGenres()
		if err != nil {
			return nil
		}
		return genres
	})
}

func (s *Session) startMachine(mode string, flow intake.Flow, draft interface{}) []string {
	s.machine = intake.New(flow)
	s.mode = mode
	var reply intake.Reply
	if draft != nil {
		reply = s.machine.StartWith(draft)
	} else {
		reply = s.machine.Start()
	}
	return reply.Messages
}

func (s *Session) feedMachine(text string) []string {
	reply := s.machine.Input(text)
	switch reply.Outcome {
	case intake.OutcomeConfirmed:
		msgs, err := s.commit(reply.Draft)
		if err != nil {
			// The machine stays in Confirming so the user can retry or
			// answer no; the store was rolled back.
			return append(commitFailure(err), "Save it? (yes/no)")
		}
		s.clear()
		return msgs
	case intake.OutcomeCancelled:
		s.clear()
		return reply.Messages
	default:
		return reply.Messages
	}
}

func (s *Session) commit(draft interface{}) ([]string, error) {
	switch s.mode {
	case "book":
		d := draft.(*intake.BookDraft)
		book, err := s.deps.Pipeline.CommitBook(d)
		if err != nil {
			return nil, err
		}
		if d.FromBuyID != 0 {
			return []string{fmt.Sprintf("Moved to the library. Book ID %d.", book.ID)}, nil
		}
		return []string{fmt.Sprintf("Book saved. ID %d.", book.ID)}, nil
	case "tobuy":
		entry, err := s.deps.Pipeline.CommitToBuy(draft.(*intake.BuyDraft))
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("Added to the buy list. Entry ID %d.", entry.ID)}, nil
	case "toread":
		entry, err := s.deps.Pipeline.CommitToRead(draft.(*intake.ReadDraft))
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("Added to the to-read list. Entry ID %d.", entry.ID)}, nil
	}
	return nil, fmt.Errorf("no intake in progress")
}

func (s *Session) handlePending(text string) []string {
	switch s.pending {
	case pendingSearch:
		s.pending = pendingNone
		books, err := s.deps.Store.SearchBooks(text)
		if err != nil {
			return failed(err)
		}
		if len(books) == 0 {
			return []string{"Nothing found."}
		}
		var lines []string
		for _, b := range books {
			line := fmt.Sprintf("%s (ID: %d)\n  %s", b.Title, b.ID, b.Authors)
			if b.SeriesName != "" {
				line += "\n  series: " + b.SeriesName
				if b.SeriesNumber != nil {
					line += fmt.Sprintf(" #%d", *b.SeriesNumber)
				}
			}
			if b.Pages != nil {
				line += fmt.Sprintf("\n  %d pages", *b.Pages)
			}
			lines = append(lines, line)
		}
		return []string{strings.Join(lines, "\n\n")}

	case pendingISBN:
		return s.handleISBN(text)

	case pendingBuyDelete:
		id, msgs := parseID(text)
		if msgs != nil {
			return msgs
		}
		entry, err := s.deps.Pipeline.DeleteToBuy(id)
		if errors.Is(err, store.ErrNotFound) {
			return []string{"No buy-list entry with that ID. Enter a valid ID:"}
		}
		if err != nil {
			return failed(err)
		}
		s.pending = pendingNone
		return []string{"Removed from the buy list: " + buyEntryLabel(entry)}

	case pendingBuyMove:
		id, msgs := parseID(text)
		if msgs != nil {
			return msgs
		}
		entry, err := s.deps.Store.GetToBuy(id)
		if errors.Is(err, store.ErrNotFound) {
			return []string{"No buy-list entry with that ID. Enter a valid ID:"}
		}
		if err != nil {
			return failed(err)
		}
		s.pending = pendingNone
		draft := &intake.BookDraft{
			Title:     entry.Title,
			Authors:   entry.Authors,
			FromBuyID: entry.ID,
			BuyNotes:  entry.Notes,
		}
		prefix := "Moving " + buyEntryLabel(entry) + " into the library. Fill in the rest:"
		return append([]string{prefix}, s.startMachine("book", s.bookFlow(), draft)...)

	case pendingBuyPriorityID:
		id, msgs := parseID(text)
		if msgs != nil {
			return msgs
		}
		if _, err := s.deps.Store.GetToBuy(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return []string{"No buy-list entry with that ID. Enter a valid ID:"}
			}
			return failed(err)
		}
		s.pendingEntryID = id
		s.pending = pendingBuyPriorityValue
		return []string{"New priority, from 1 (lowest) to 5 (highest):"}

	case pendingBuyPriorityValue:
		return s.applyPriority(text, s.deps.Pipeline.ChangeBuyPriority)

	case pendingReadPriorityID:
		id, msgs := parseID(text)
		if msgs != nil {
			return msgs
		}
		if _, err := s.deps.Store.GetToRead(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return []string{"No to-read entry with that ID. Enter a valid ID:"}
			}
			return failed(err)
		}
		s.pendingEntryID = id
		s.pending = pendingReadPriorityValue
		return []string{"New priority, from 1 (lowest) to 5 (highest):"}

	case pendingReadPriorityValue:
		return s.applyPriority(text, s.deps.Pipeline.ChangeReadPriority)

	case pendingReadDelete:
		id, msgs := parseID(text)
		if msgs != nil {
			return msgs
		}
		book, err := s.deps.Pipeline.DeleteToRead(id)
		if errors.Is(err, store.ErrNotFound) {
			return []string{"No to-read entry with that ID. Enter a valid ID:"}
		}
		if err != nil {
			return failed(err)
		}
		s.pending = pendingNone
		return []string{"Removed from the to-read list: " + book.Title}

	case pendingReadDone:
		id, msgs := parseID(text)
		if msgs != nil {
			return msgs
		}
		book, err := s.deps.Pipeline.MarkAsRead(id)
		if errors.Is(err, store.ErrNotFound) {
			return []string{"No to-read entry with that ID. Enter a valid ID:"}
		}
		if err != nil {
			return failed(err)
		}
		s.pending = pendingNone
		return []string{"Marked as read: " + book.Title}

	case pendingEventBookID:
		id, msgs := parseID(text)
		if msgs != nil {
			return msgs
		}
		eventType := s.pendingEvent
		err := s.deps.Pipeline.RecordEvent(id, eventType, "")
		if errors.Is(err, store.ErrNotFound) {
			return []string{"No book with that ID. Enter a valid ID:"}
		}
		if err != nil {
			return failed(err)
		}
		s.pending = pendingNone
		s.pendingEvent = ""
		return []string{"Logged: " + eventType + "."}
	}
	return []string{helpText}
}

// applyPriority finishes the two-step priority prompt for either list.
func (s *Session) applyPriority(text string, change func(id uint, priority int) error) []string {
	p, err := intake.PriorityValue(text)
	if err != nil {
		return []string{err.Error()}
	}
	err = change(s.pendingEntryID, p)
	s.pending = pendingNone
	s.pendingEntryID = 0
	if errors.Is(err, store.ErrNotFound) {
		return []string{"That entry is gone."}
	}
	if err != nil {
		return failed(err)
	}
	return []string{fmt.Sprintf("Priority set to %d.", p)}
}

func (s *Session) handleISBN(text string) []string {
	normalized, err := isbn.Normalize(text)
	if err != nil {
		return []string{"That is not a valid ISBN. Enter 10 or 13 digits:"}
	}
	s.pending = pendingNone

	result, err := s.deps.ISBN.Lookup(context.Background(), normalized)
	if errors.Is(err, isbn.ErrNotFound) {
		return []string{"Book not found."}
	}
	if err != nil {
		return []string{"The lookup failed, try again later."}
	}

	draft := &intake.BookDraft{
		Title:       result.Title,
		Authors:     result.Authors,
		Format:      models.FormatPhysical,
		Source:      strPtr(""),
		Year:        result.Year,
		Pages:       result.Pages,
		Publisher:   strPtr(result.Publisher),
		Genre:       strPtr(""),
		Description: strPtr(""),
		ISBN:        strPtr(result.ISBN),
		Series:      boolPtr(false),
		IsRead:      boolPtr(false),
	}
	book, err := s.deps.Pipeline.CommitBook(draft)
	if err != nil {
		return failed(err)
	}
	return []string{fmt.Sprintf("Book added. ID %d.", book.ID)}
}

func (s *Session) buyListText() []string {
	entries, err := s.deps.Store.ListToBuy()
	if err != nil {
		return failed(err)
	}
	if len(entries) == 0 {
		return []string{"The buy list is empty. Use /tobuy to add something."}
	}
	var lines []string
	lines = append(lines, "Books to buy:")
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("• [p%d] %s (ID: %d)", e.Priority, buyEntryLabel(&e), e.ID))
	}
	lines = append(lines, "", "/buy_move — move one into the library, /buy_del — delete, /buy_prio — change priority")
	return []string{strings.Join(lines, "\n")}
}

func (s *Session) readListText() []string {
	items, err := s.deps.Store.ListToRead()
	if err != nil {
		return failed(err)
	}
	if len(items) == 0 {
		return []string{"The to-read list is empty. Use /toread to add a book."}
	}
	var lines []string
	lines = append(lines, "Books to read:")
	for _, it := range items {
		title := it.Book.Title
		if title == "" {
			title = "unknown item"
		}
		line := fmt.Sprintf("• [p%d] %s", it.Entry.Priority, title)
		if it.Book.Authors != "" {
			line += " | " + it.Book.Authors
		}
		if it.Book.SeriesName != "" {
			line += " | series: " + it.Book.SeriesName
			if it.Book.SeriesNumber != nil {
				line += fmt.Sprintf(" #%d", *it.Book.SeriesNumber)
			}
		}
		if it.Entry.Notes != "" {
			line += " | " + it.Entry.Notes
		}
		line += fmt.Sprintf(" (ID: %d)", it.Entry.ID)
		lines = append(lines, line)
	}
	lines = append(lines, "", "/read_done — mark as read, /read_del — remove from the list, /read_prio — change priority")
	return []string{strings.Join(lines, "\n")}
}

func buyEntryLabel(e *models.ToBuyEntry) string {
	var parts []string
	if e.Title != "" {
		parts = append(parts, e.Title)
	}
	if e.Authors != "" {
		parts = append(parts, e.Authors)
	}
	if len(parts) == 0 {
		return "(untitled)"
	}
	return strings.Join(parts, " | ")
}

func parseID(text string) (uint, []string) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return 0, []string{"Enter a numeric ID:"}
	}
	return uint(n), nil
}

func commitFailure(err error) []string {
	if errors.Is(err, store.ErrIntegrity) {
		return []string{"That cannot be saved: " + err.Error()}
	}
	if errors.Is(err, store.ErrNotFound) {
		return []string{"The referenced item no longer exists, nothing was saved."}
	}
	return []string{"The operation failed and nothing was saved."}
}

func failed(err error) []string {
	return []string{"The operation failed: " + err.Error()}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
