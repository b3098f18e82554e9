package intake

import (
	"fmt"
	"strings"

	"bookbot/pkg/models"
)

// Field is one question of a flow: the prompt shown to the user and the
// parser that validates the answer and merges it into the partial record.
type Field struct {
	ID     FieldID
	Prompt func(draft interface{}) string
	Parse  func(input string, draft interface{}) error
}

// Flow is the field flow graph for one kind of intake. Next is a pure
// function of the values collected so far; it never backtracks.
type Flow interface {
	Name() string
	NewDraft() interface{}
	Next(draft interface{}) (FieldID, bool)
	Field(id FieldID) Field
	Summary(draft interface{}) string
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }

func orDash(p *string) string {
	if p == nil || *p == "" {
		return "—"
	}
	return *p
}

func yesNoWord(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ---- book flow ----

// bookStep is one row of the book transition table: the field applies when
// its guard holds and is still pending when it has no value yet.
type bookStep struct {
	id      FieldID
	applies func(*BookDraft) bool
	pending func(*BookDraft) bool
}

func bookAlways(*BookDraft) bool { return true }
func bookPhysical(b *BookDraft) bool { return b.Format == models.FormatPhysical }
func bookDigital(b *BookDraft) bool  { return b.Format == models.FormatDigital }
func bookInSeries(b *BookDraft) bool { return b.Series != nil && *b.Series }

// The order of this table is the question order. Physical and digital
// formats diverge after source and converge again at genre; the isbn/url
// branch converges into the series question.
var bookSteps = []bookStep{
	{FieldTitle, bookAlways, func(b *BookDraft) bool { return b.Title == "" }},
	{FieldAuthors, bookAlways, func(b *BookDraft) bool { return b.Authors == "" }},
	{FieldFormat, bookAlways, func(b *BookDraft) bool { return b.Format == "" }},
	{FieldSource, bookAlways, func(b *BookDraft) bool { return b.Source == nil }},
	{FieldYear, bookPhysical, func(b *BookDraft) bool { return b.Year == nil }},
	{FieldPages, bookPhysical, func(b *BookDraft) bool { return b.Pages == nil }},
	{FieldPublisher, bookPhysical, func(b *BookDraft) bool { return b.Publisher == nil }},
	{FieldCharCount, bookDigital, func(b *BookDraft) bool { return b.CharCount == nil }},
	{FieldGenre, bookAlways, func(b *BookDraft) bool { return b.Genre == nil }},
	{FieldDescription, bookAlways, func(b *BookDraft) bool { return b.Description == nil }},
	{FieldISBN, bookPhysical, func(b *BookDraft) bool { return b.ISBN == nil }},
	{FieldURL, bookDigital, func(b *BookDraft) bool { return b.URL == nil }},
	{FieldSeries, bookAlways, func(b *BookDraft) bool { return b.Series == nil }},
	{FieldSeriesName, bookInSeries, func(b *BookDraft) bool { return b.SeriesName == nil }},
	{FieldSeriesNumber, bookInSeries, func(b *BookDraft) bool { return b.SeriesNumber == nil }},
	{FieldIsRead, bookAlways, func(b *BookDraft) bool { return b.IsRead == nil }},
}

// BookFlow collects a full book record. genres supplies the distinct
// genres already in the library for the genre prompt; it may be nil.
type BookFlow struct {
	genres func() []string
}

func NewBookFlow(genres func() []string) *BookFlow {
	return &BookFlow{genres: genres}
}

func (f *BookFlow) Name() string          { return "book" }
func (f *BookFlow) NewDraft() interface{} { return &BookDraft{} }

func (f *BookFlow) Next(draft interface{}) (FieldID, bool) {
	b := draft.(*BookDraft)
	for _, s := range bookSteps {
		if s.applies(b) && s.pending(b) {
			return s.id, false
		}
	}
	return "", true
}

func (f *BookFlow) Field(id FieldID) Field {
	switch id {
	case FieldTitle:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Enter the book title:" },
			Parse: func(in string, d interface{}) error {
				v, err := RequiredText(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).Title = v
				return nil
			}}
	case FieldAuthors:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Enter the author(s), comma-separated if several:" },
			Parse: func(in string, d interface{}) error {
				v, err := RequiredText(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).Authors = v
				return nil
			}}
	case FieldFormat:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Format? Enter 'physical' or 'digital':" },
			Parse: func(in string, d interface{}) error {
				v, err := FormatValue(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).Format = v
				return nil
			}}
	case FieldSource:
		return Field{ID: id,
			Prompt: func(interface{}) string {
				return fmt.Sprintf("Source? One of %s (or '-' to skip):", strings.Join(models.Sources, ", "))
			},
			Parse: func(in string, d interface{}) error {
				v, _, err := SourceValue(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).Source = strPtr(v)
				return nil
			}}
	case FieldYear:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Publication year (1001 to 2030):" },
			Parse: func(in string, d interface{}) error {
				v, err := YearValue(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).Year = intPtr(v)
				return nil
			}}
	case FieldPages:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "How many pages?" },
			Parse: func(in string, d interface{}) error {
				v, err := PositiveCount(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).Pages = intPtr(v)
				return nil
			}}
	case FieldPublisher:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Publisher (or '-' to skip):" },
			Parse: func(in string, d interface{}) error {
				d.(*BookDraft).Publisher = strPtr(OptionalText(in))
				return nil
			}}
	case FieldCharCount:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Character count:" },
			Parse: func(in string, d interface{}) error {
				v, err := CharCountValue(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).CharCount = intPtr(v)
				return nil
			}}
	case FieldGenre:
		return Field{ID: id,
			Prompt: func(interface{}) string {
				prompt := "Genre (or '-' to skip)"
				if f.genres != nil {
					if known := f.genres(); len(known) > 0 {
						prompt += ". Already in your library: " + strings.Join(known, ", ")
					}
				}
				return prompt + ":"
			},
			Parse: func(in string, d interface{}) error {
				d.(*BookDraft).Genre = strPtr(OptionalText(in))
				return nil
			}}
	case FieldDescription:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Description (or '-' to skip):" },
			Parse: func(in string, d interface{}) error {
				d.(*BookDraft).Description = strPtr(OptionalText(in))
				return nil
			}}
	case FieldISBN:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "ISBN (or '-' to skip):" },
			Parse: func(in string, d interface{}) error {
				d.(*BookDraft).ISBN = strPtr(OptionalText(in))
				return nil
			}}
	case FieldURL:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "URL (or '-' to skip):" },
			Parse: func(in string, d interface{}) error {
				d.(*BookDraft).URL = strPtr(OptionalText(in))
				return nil
			}}
	case FieldSeries:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Is this book part of a series? (yes/no)" },
			Parse: func(in string, d interface{}) error {
				v, err := YesNo(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).Series = boolPtr(v)
				return nil
			}}
	case FieldSeriesName:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Series name:" },
			Parse: func(in string, d interface{}) error {
				v, err := RequiredText(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).SeriesName = strPtr(v)
				return nil
			}}
	case FieldSeriesNumber:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Number in the series:" },
			Parse: func(in string, d interface{}) error {
				v, err := SeriesNumberValue(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).SeriesNumber = intPtr(v)
				return nil
			}}
	case FieldIsRead:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Have you already read it? (yes/no)" },
			Parse: func(in string, d interface{}) error {
				v, err := YesNo(in)
				if err != nil {
					return err
				}
				d.(*BookDraft).IsRead = boolPtr(v)
				return nil
			}}
	}
	panic(fmt.Sprintf("unknown book field %q", id))
}

func (f *BookFlow) Summary(draft interface{}) string {
	b := draft.(*BookDraft)
	lines := []string{"Here is the book you entered:"}
	lines = append(lines,
		"Title: "+b.Title,
		"Authors: "+b.Authors,
		"Format: "+b.Format,
		"Source: "+orDash(b.Source),
	)
	if b.Format == models.FormatPhysical {
		if b.Year != nil {
			lines = append(lines, fmt.Sprintf("Year: %d", *b.Year))
		}
		if b.Pages != nil {
			lines = append(lines, fmt.Sprintf("Pages: %d", *b.Pages))
		}
		lines = append(lines, "Publisher: "+orDash(b.Publisher))
	} else if b.CharCount != nil {
		lines = append(lines, fmt.Sprintf("Characters: %d", *b.CharCount))
	}
	lines = append(lines,
		"Genre: "+orDash(b.Genre),
		"Description: "+orDash(b.Description),
	)
	if b.Format == models.FormatPhysical {
		lines = append(lines, "ISBN: "+orDash(b.ISBN))
	} else {
		lines = append(lines, "URL: "+orDash(b.URL))
	}
	if b.Series != nil && *b.Series && b.SeriesName != nil {
		series := *b.SeriesName
		if b.SeriesNumber != nil {
			series += fmt.Sprintf(" #%d", *b.SeriesNumber)
		}
		lines = append(lines, "Series: "+series)
	} else {
		lines = append(lines, "Series: no")
	}
	if b.IsRead != nil {
		lines = append(lines, "Read: "+yesNoWord(*b.IsRead))
	}
	return strings.Join(lines, "\n")
}

// ---- to-buy flow ----

// BuyFlow collects an intended-purchase entry.
type BuyFlow struct{}

func NewBuyFlow() *BuyFlow { return &BuyFlow{} }

func (f *BuyFlow) Name() string          { return "to-buy" }
func (f *BuyFlow) NewDraft() interface{} { return &BuyDraft{} }

func (f *BuyFlow) Next(draft interface{}) (FieldID, bool) {
	b := draft.(*BuyDraft)
	switch {
	case b.Authors == nil:
		return FieldBuyAuthors, false
	case b.Title == nil:
		return FieldBuyTitle, false
	case b.Notes == nil:
		return FieldBuyNotes, false
	case b.Priority == nil:
		return FieldBuyPriority, false
	}
	return "", true
}

func (f *BuyFlow) Field(id FieldID) Field {
	switch id {
	case FieldBuyAuthors:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Enter the author(s) (or '-' if unknown):" },
			Parse: func(in string, d interface{}) error {
				d.(*BuyDraft).Authors = strPtr(OptionalText(in))
				return nil
			}}
	case FieldBuyTitle:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Enter the title (or '-' if unknown):" },
			Parse: func(in string, d interface{}) error {
				b := d.(*BuyDraft)
				title := OptionalText(in)
				if title == "" && (b.Authors == nil || *b.Authors == "") {
					return Reject("At least the author or the title is required.")
				}
				b.Title = strPtr(title)
				return nil
			}}
	case FieldBuyNotes:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Notes (or '-' to skip):" },
			Parse: func(in string, d interface{}) error {
				d.(*BuyDraft).Notes = strPtr(OptionalText(in))
				return nil
			}}
	case FieldBuyPriority:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Priority, from 1 (lowest) to 5 (highest):" },
			Parse: func(in string, d interface{}) error {
				v, err := PriorityValue(in)
				if err != nil {
					return err
				}
				d.(*BuyDraft).Priority = intPtr(v)
				return nil
			}}
	}
	panic(fmt.Sprintf("unknown to-buy field %q", id))
}

func (f *BuyFlow) Summary(draft interface{}) string {
	b := draft.(*BuyDraft)
	lines := []string{"Here is the to-buy entry:"}
	lines = append(lines,
		"Authors: "+orDash(b.Authors),
		"Title: "+orDash(b.Title),
		"Notes: "+orDash(b.Notes),
	)
	if b.Priority != nil {
		lines = append(lines, fmt.Sprintf("Priority: %d", *b.Priority))
	}
	return strings.Join(lines, "\n")
}

// ---- to-read flow ----

// ReadFlow collects a to-read entry by searching the library first. The
// search closure already excludes books present on the to-read list.
type ReadFlow struct {
	search func(query string) ([]models.Book, error)
}

func NewReadFlow(search func(string) ([]models.Book, error)) *ReadFlow {
	return &ReadFlow{search: search}
}

func (f *ReadFlow) Name() string          { return "to-read" }
func (f *ReadFlow) NewDraft() interface{} { return &ReadDraft{} }

func (f *ReadFlow) Next(draft interface{}) (FieldID, bool) {
	r := draft.(*ReadDraft)
	switch {
	case r.Query == "":
		return FieldReadQuery, false
	case r.BookID == nil:
		return FieldReadBookID, false
	case r.Notes == nil:
		return FieldReadNotes, false
	}
	return "", true
}

func (f *ReadFlow) Field(id FieldID) Field {
	switch id {
	case FieldReadQuery:
		return Field{ID: id,
			Prompt: func(interface{}) string {
				return "Find the book in your library. Enter an author, title or series:"
			},
			Parse: func(in string, d interface{}) error {
				r := d.(*ReadDraft)
				q, err := RequiredText(in)
				if err != nil {
					return err
				}
				found, err := f.search(q)
				if err != nil {
					return fmt.Errorf("search books: %w", err)
				}
				if len(found) == 0 {
					return Reject("Nothing found, or every match is already on the to-read list. Try another query.")
				}
				r.Query = q
				r.Candidates = found
				return nil
			}}
	case FieldReadBookID:
		return Field{ID: id,
			Prompt: func(d interface{}) string {
				r := d.(*ReadDraft)
				lines := []string{"Pick a book (send its ID):"}
				for _, b := range r.Candidates {
					line := fmt.Sprintf("ID %d — %s", b.ID, b.Title)
					if b.Authors != "" {
						line += " | " + b.Authors
					}
					if b.SeriesName != "" {
						line += " | series: " + b.SeriesName
					}
					lines = append(lines, line)
				}
				return strings.Join(lines, "\n")
			},
			Parse: func(in string, d interface{}) error {
				r := d.(*ReadDraft)
				n, err := digits(in)
				if err != nil {
					return Reject("Enter the numeric ID of one of the listed books.")
				}
				id := uint(n)
				for _, b := range r.Candidates {
					if b.ID == id {
						r.BookID = &id
						return nil
					}
				}
				return Reject("That ID is not in the list. Try again.")
			}}
	case FieldReadNotes:
		return Field{ID: id,
			Prompt: func(interface{}) string { return "Notes (or '-' to skip):" },
			Parse: func(in string, d interface{}) error {
				d.(*ReadDraft).Notes = strPtr(OptionalText(in))
				return nil
			}}
	}
	panic(fmt.Sprintf("unknown to-read field %q", id))
}

func (f *ReadFlow) Summary(draft interface{}) string {
	r := draft.(*ReadDraft)
	lines := []string{"Add to the to-read list:"}
	if b, ok := r.Selected(); ok {
		line := "Book: " + b.Title
		if b.Authors != "" {
			line += " | " + b.Authors
		}
		lines = append(lines, line)
	}
	lines = append(lines, "Notes: "+orDash(r.Notes))
	return strings.Join(lines, "\n")
}
