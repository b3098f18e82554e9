// Package pipeline is the commit and audit pipeline: every completed intake
// is persisted together with its correlated event-log entry as one
// transaction, so a failed log write can never leave a record without its
// audit trail.
package pipeline

import (
	"fmt"

	"bookbot/pkg/intake"
	"bookbot/pkg/models"
	"bookbot/pkg/store"
)

type Pipeline struct {
	store *store.Store
}

func New(st *store.Store) *Pipeline {
	return &Pipeline{store: st}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// bookFromDraft maps a confirmed draft onto a Book row, keeping the
// format-dependent columns mutually exclusive.
func bookFromDraft(d *intake.BookDraft) *models.Book {
	b := &models.Book{
		Title:       d.Title,
		Authors:     d.Authors,
		Format:      d.Format,
		Source:      deref(d.Source),
		Genre:       deref(d.Genre),
		Description: deref(d.Description),
	}
	if d.IsRead != nil {
		b.IsRead = *d.IsRead
	}
	if d.Series != nil && *d.Series && deref(d.SeriesName) != "" {
		b.SeriesName = *d.SeriesName
		if d.SeriesNumber != nil {
			n := *d.SeriesNumber
			b.SeriesNumber = &n
		}
	}
	switch d.Format {
	case models.FormatPhysical:
		if d.Year != nil {
			y := *d.Year
			b.Year = &y
		}
		if d.Pages != nil {
			p := *d.Pages
			b.Pages = &p
		}
		b.Publisher = deref(d.Publisher)
		b.ISBN = deref(d.ISBN)
	case models.FormatDigital:
		if d.CharCount != nil {
			c := *d.CharCount
			b.CharCount = &c
		}
		b.URL = deref(d.URL)
	}
	return b
}

// CommitBook persists one new book and its "added" event. If the draft was
// started from a to-buy entry, it instead records a
// moved_from_buy_to_library event and deletes the source entry; the
// deletion happens only after the book insert succeeded, inside the same
// transaction.
func (p *Pipeline) CommitBook(d *intake.BookDraft) (*models.Book, error) {
	book := bookFromDraft(d)
	err := p.store.WithTx(func(tx *store.Store) error {
		if d.FromBuyID != 0 {
			if _, err := tx.GetToBuy(d.FromBuyID); err != nil {
				return fmt.Errorf("promote to-buy entry %d: %w", d.FromBuyID, err)
			}
		}
		if err := tx.CreateBook(book); err != nil {
			return err
		}
		event := &models.EventLogEntry{
			BookID:          &book.ID,
			EventType:       models.EventAdded,
			Notes:           "Book added to the library",
			TitleSnapshot:   book.Title,
			AuthorsSnapshot: book.Authors,
		}
		if d.FromBuyID != 0 {
			buyID := d.FromBuyID
			event.EventType = models.EventMovedFromBuyToLib
			event.ListItemID = &buyID
			event.Notes = d.BuyNotes
			if err := tx.AppendEvent(event); err != nil {
				return err
			}
			return tx.DeleteToBuy(d.FromBuyID)
		}
		return tx.AppendEvent(event)
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// CommitToBuy persists a to-buy entry plus its added_to_buy_list event.
func (p *Pipeline) CommitToBuy(d *intake.BuyDraft) (*models.ToBuyEntry, error) {
	entry := &models.ToBuyEntry{
		Authors:  deref(d.Authors),
		Title:    deref(d.Title),
		Notes:    deref(d.Notes),
		Priority: derefInt(d.Priority, 1),
	}
	err := p.store.WithTx(func(tx *store.Store) error {
		if err := tx.CreateToBuy(entry); err != nil {
			return err
		}
		return tx.AppendEvent(&models.EventLogEntry{
			ListItemID:      &entry.ID,
			EventType:       models.EventAddedToBuyList,
			Notes:           entry.Notes,
			TitleSnapshot:   entry.Title,
			AuthorsSnapshot: entry.Authors,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CommitToRead persists a to-read entry plus its added_to_read_list event.
// Existence and uniqueness of the referenced book are checked inside the
// transaction before any write.
func (p *Pipeline) CommitToRead(d *intake.ReadDraft) (*models.ToReadEntry, error) {
	if d.BookID == nil {
		return nil, fmt.Errorf("%w: to-read draft without a selected book", store.ErrIntegrity)
	}
	entry := &models.ToReadEntry{BookID: *d.BookID, Notes: deref(d.Notes)}
	err := p.store.WithTx(func(tx *store.Store) error {
		book, err := tx.GetBook(entry.BookID)
		if err != nil {
			return err
		}
		if err := tx.CreateToRead(entry); err != nil {
			return err
		}
		return tx.AppendEvent(&models.EventLogEntry{
			BookID:          &entry.BookID,
			ListItemID:      &entry.ID,
			EventType:       models.EventAddedToReadList,
			Notes:           entry.Notes,
			TitleSnapshot:   book.Title,
			AuthorsSnapshot: book.Authors,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteToBuy removes a to-buy entry and records the removal.
func (p *Pipeline) DeleteToBuy(id uint) (*models.ToBuyEntry, error) {
	var entry *models.ToBuyEntry
	err := p.store.WithTx(func(tx *store.Store) error {
		var err error
		entry, err = tx.GetToBuy(id)
		if err != nil {
			return err
		}
		if err := tx.DeleteToBuy(id); err != nil {
			return err
		}
		return tx.AppendEvent(&models.EventLogEntry{
			ListItemID:      &entry.ID,
			EventType:       models.EventRemovedFromBuyList,
			TitleSnapshot:   entry.Title,
			AuthorsSnapshot: entry.Authors,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteToRead removes a to-read entry and records the removal. The book
// itself is untouched.
func (p *Pipeline) DeleteToRead(id uint) (*models.Book, error) {
	var book *models.Book
	err := p.store.WithTx(func(tx *store.Store) error {
		entry, err := tx.GetToRead(id)
		if err != nil {
			return err
		}
		book, err = tx.GetBook(entry.BookID)
		if err != nil {
			return err
		}
		if err := tx.DeleteToRead(id); err != nil {
			return err
		}
		return tx.AppendEvent(&models.EventLogEntry{
			BookID:          &entry.BookID,
			ListItemID:      &entry.ID,
			EventType:       models.EventRemovedFromReadLst,
			TitleSnapshot:   book.Title,
			AuthorsSnapshot: book.Authors,
		})
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// MarkAsRead flips the referenced book to read, deletes the to-read entry
// and writes the marked_as_read event last so it can reference both ids.
// Invoking it again for the same entry id yields store.ErrNotFound.
func (p *Pipeline) MarkAsRead(entryID uint) (*models.Book, error) {
	var book *models.Book
	err := p.store.WithTx(func(tx *store.Store) error {
		entry, err := tx.GetToRead(entryID)
		if err != nil {
			return err
		}
		book, err = tx.GetBook(entry.BookID)
		if err != nil {
			return err
		}
		if err := tx.UpdateBook(book.ID, map[string]interface{}{"is_read": true}); err != nil {
			return err
		}
		if err := tx.DeleteToRead(entryID); err != nil {
			return err
		}
		book.IsRead = true
		return tx.AppendEvent(&models.EventLogEntry{
			BookID:          &book.ID,
			ListItemID:      &entryID,
			EventType:       models.EventMarkedAsRead,
			TitleSnapshot:   book.Title,
			AuthorsSnapshot: book.Authors,
		})
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// ChangeBuyPriority updates a to-buy entry's priority and logs "old→new".
func (p *Pipeline) ChangeBuyPriority(id uint, priority int) error {
	if priority < 1 || priority > 5 {
		return fmt.Errorf("%w: priority %d out of range", store.ErrIntegrity, priority)
	}
	return p.store.WithTx(func(tx *store.Store) error {
		entry, err := tx.GetToBuy(id)
		if err != nil {
			return err
		}
		if err := tx.UpdateToBuyPriority(id, priority); err != nil {
			return err
		}
		return tx.AppendEvent(&models.EventLogEntry{
			ListItemID:      &entry.ID,
			EventType:       models.EventPriorityChanged,
			Notes:           fmt.Sprintf("%d→%d", entry.Priority, priority),
			TitleSnapshot:   entry.Title,
			AuthorsSnapshot: entry.Authors,
		})
	})
}

// ChangeReadPriority updates a to-read entry's priority and logs "old→new".
func (p *Pipeline) ChangeReadPriority(id uint, priority int) error {
	if priority < 1 || priority > 5 {
		return fmt.Errorf("%w: priority %d out of range", store.ErrIntegrity, priority)
	}
	return p.store.WithTx(func(tx *store.Store) error {
		entry, err := tx.GetToRead(id)
		if err != nil {
			return err
		}
		if err := tx.UpdateToReadPriority(id, priority); err != nil {
			return err
		}
		event := &models.EventLogEntry{
			BookID:     &entry.BookID,
			ListItemID: &entry.ID,
			EventType:  models.EventPriorityChanged,
			Notes:      fmt.Sprintf("%d→%d", entry.Priority, priority),
		}
		if book, err := tx.GetBook(entry.BookID); err == nil {
			event.TitleSnapshot = book.Title
			event.AuthorsSnapshot = book.Authors
		}
		return tx.AppendEvent(event)
	})
}

// RecordEvent appends a free-form reading event (started_reading,
// finished_reading, reviewed) for an existing book.
func (p *Pipeline) RecordEvent(bookID uint, eventType, notes string) error {
	return p.store.WithTx(func(tx *store.Store) error {
		book, err := tx.GetBook(bookID)
		if err != nil {
			return err
		}
		return tx.AppendEvent(&models.EventLogEntry{
			BookID:          &book.ID,
			EventType:       eventType,
			Notes:           notes,
			TitleSnapshot:   book.Title,
			AuthorsSnapshot: book.Authors,
		})
	})
}
