package intake

import (
	"bookbot/pkg/models"
)

// FieldID names one question in a flow.
type FieldID string

// Book intake fields.
const (
	FieldTitle        FieldID = "title"
	FieldAuthors      FieldID = "authors"
	FieldFormat       FieldID = "format"
	FieldSource       FieldID = "source"
	FieldYear         FieldID = "year"
	FieldPages        FieldID = "pages"
	FieldPublisher    FieldID = "publisher"
	FieldCharCount    FieldID = "char_count"
	FieldGenre        FieldID = "genre"
	FieldDescription  FieldID = "description"
	FieldISBN         FieldID = "isbn"
	FieldURL          FieldID = "url"
	FieldSeries       FieldID = "series"
	FieldSeriesName   FieldID = "series_name"
	FieldSeriesNumber FieldID = "series_number"
	FieldIsRead       FieldID = "is_read"
)

// To-buy intake fields.
const (
	FieldBuyAuthors  FieldID = "buy_authors"
	FieldBuyTitle    FieldID = "buy_title"
	FieldBuyNotes    FieldID = "buy_notes"
	FieldBuyPriority FieldID = "buy_priority"
)

// To-read intake fields.
const (
	FieldReadQuery  FieldID = "read_query"
	FieldReadBookID FieldID = "read_book_id"
	FieldReadNotes  FieldID = "read_notes"
)

// BookDraft is the partial record for one book intake. Required fields are
// plain values ("" means not yet collected); optional fields are pointers so
// an explicit skip (stored as empty) is distinguishable from "not asked yet".
type BookDraft struct {
	Title        string
	Authors      string
	Format       string
	Source       *string
	Year         *int
	Pages        *int
	CharCount    *int
	Publisher    *string
	Genre        *string
	Description  *string
	ISBN         *string
	URL          *string
	Series       *bool
	SeriesName   *string
	SeriesNumber *int
	IsRead       *bool

	// Promotion context: set when this intake was started from a to-buy
	// entry, so the commit can delete the source row and correlate the event.
	FromBuyID uint
	BuyNotes  string
}

// BuyDraft is the partial record for a to-buy entry. At least one of
// authors/title must end up non-empty; the title parser enforces that.
type BuyDraft struct {
	Authors  *string
	Title    *string
	Notes    *string
	Priority *int
}

// ReadDraft is the partial record for a to-read entry. Candidates holds the
// search results the selection is validated against.
type ReadDraft struct {
	Query      string
	Candidates []models.Book
	BookID     *uint
	Notes      *string
}

// Selected returns the candidate chosen by BookID.
func (d *ReadDraft) Selected() (models.Book, bool) {
	if d.BookID == nil {
		return models.Book{}, false
	}
	for _, b := range d.Candidates {
		if b.ID == *d.BookID {
			return b, true
		}
	}
	return models.Book{}, false
}
