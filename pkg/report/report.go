// Package report builds the on-demand and scheduled summaries over the
// entity store and the append-only event log. Report items prefer the live
// book row and fall back to the snapshot recorded with the event, so a
// deleted book still shows up in history.
package report

import (
	"fmt"
	"strings"
	"time"

	"bookbot/pkg/models"
	"bookbot/pkg/store"
)

// DefaultMessageBudget is the outbound message size limit the splitter
// works against.
const DefaultMessageBudget = 4000

type Reporter struct {
	store *store.Store
}

func New(st *store.Store) *Reporter {
	return &Reporter{store: st}
}

// Item is one book line of a monthly report.
type Item struct {
	BookID       uint
	Title        string
	Authors      string
	SeriesName   string
	SeriesNumber *int
	Pages        *int
	Format       string
	Source       string
	EventDate    time.Time
	Notes        string
	Missing      bool // book row gone; rendered from the event snapshot
}

// Monthly is a deduplicated per-month report: one item per book, keeping
// the latest event when several reference the same book.
type Monthly struct {
	Items      []Item
	TotalBooks int
	TotalPages int
	Since      time.Time
}

// MonthStart returns midnight on the first day of now's month.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// PrevMonth returns the bounds of the month before now's.
func PrevMonth(now time.Time) (start, end time.Time) {
	end = MonthStart(now)
	return end.AddDate(0, -1, 0), end
}

// dedupe keeps one event per book id, the latest by event date. Events
// arrive ordered newest first, so the first occurrence wins.
func dedupe(events []models.EventLogEntry) []models.EventLogEntry {
	seen := make(map[uint]bool)
	var out []models.EventLogEntry
	for _, e := range events {
		if e.BookID == nil {
			continue
		}
		if seen[*e.BookID] {
			continue
		}
		seen[*e.BookID] = true
		out = append(out, e)
	}
	return out
}

func (r *Reporter) items(events []models.EventLogEntry) ([]Item, error) {
	var ids []uint
	for _, e := range events {
		ids = append(ids, *e.BookID)
	}
	books, err := r.store.GetBooksByIDs(ids)
	if err != nil {
		return nil, err
	}
	var out []Item
	for _, e := range events {
		item := Item{
			BookID:    *e.BookID,
			Title:     e.TitleSnapshot,
			Authors:   e.AuthorsSnapshot,
			EventDate: e.EventDate,
			Notes:     e.Notes,
			Missing:   true,
		}
		if b, ok := books[*e.BookID]; ok {
			item.Missing = false
			item.Title = b.Title
			item.Authors = b.Authors
			item.SeriesName = b.SeriesName
			item.SeriesNumber = b.SeriesNumber
			item.Pages = b.Pages
			item.Format = b.Format
			item.Source = b.Source
		}
		if item.Title == "" {
			item.Title = "unknown item"
		}
		out = append(out, item)
	}
	return out, nil
}

// MonthlyReading reports books finished in [since, until): finished_reading
// and marked_as_read events, one item per book.
func (r *Reporter) MonthlyReading(since, until time.Time) (*Monthly, error) {
	events, err := r.store.QueryEvents(store.EventFilter{
		Types: []string{models.EventFinishedReading, models.EventMarkedAsRead},
		Since: since,
		Until: until,
	})
	if err != nil {
		return nil, err
	}
	items, err := r.items(dedupe(events))
	if err != nil {
		return nil, err
	}
	m := &Monthly{Items: items, TotalBooks: len(items), Since: since}
	for _, it := range items {
		if it.Pages != nil {
			m.TotalPages += *it.Pages
		}
	}
	return m, nil
}

// MonthlyPurchases reports shop books that entered the library in
// [since, until): added and moved_from_buy_to_library events, restricted to
// books bought from a shop. Books deleted since then no longer carry a
// source and are left out.
func (r *Reporter) MonthlyPurchases(since, until time.Time) (*Monthly, error) {
	events, err := r.store.QueryEvents(store.EventFilter{
		Types: []string{models.EventMovedFromBuyToLib, models.EventAdded},
		Since: since,
		Until: until,
	})
	if err != nil {
		return nil, err
	}
	items, err := r.items(dedupe(events))
	if err != nil {
		return nil, err
	}
	m := &Monthly{Since: since}
	for _, it := range items {
		if it.Missing || it.Source != models.SourceShop {
			continue
		}
		m.Items = append(m.Items, it)
	}
	m.TotalBooks = len(m.Items)
	return m, nil
}

func formatItem(it Item, icon string) string {
	lines := []string{fmt.Sprintf("%s %s", icon, it.Title)}
	if it.Authors != "" {
		lines = append(lines, "   "+it.Authors)
	}
	if it.SeriesName != "" {
		series := "   series: " + it.SeriesName
		if it.SeriesNumber != nil {
			series += fmt.Sprintf(" #%d", *it.SeriesNumber)
		}
		lines = append(lines, series)
	}
	details := []string{
		fmt.Sprintf("ID %d", it.BookID),
		it.EventDate.Format("02.01.2006"),
	}
	if it.Pages != nil {
		details = append(details, fmt.Sprintf("%d pages", *it.Pages))
	}
	if it.Format != "" {
		details = append(details, it.Format)
	}
	if it.Missing {
		details = append(details, "no longer in the library")
	}
	lines = append(lines, "   "+strings.Join(details, " • "))
	if it.Notes != "" {
		lines = append(lines, "   "+it.Notes)
	}
	return strings.Join(lines, "\n")
}

// FormatCombined renders the reading and purchases reports as one digest.
func FormatCombined(reading, purchases *Monthly) string {
	monthName := reading.Since.Format("January 2006")
	var out []string
	out = append(out, "MONTHLY REPORT — "+monthName, "")

	if reading.TotalBooks > 0 {
		out = append(out, fmt.Sprintf("Read: %d books", reading.TotalBooks))
		if reading.TotalPages > 0 {
			out = append(out, fmt.Sprintf("Pages: %d", reading.TotalPages))
		}
	}
	if purchases.TotalBooks > 0 {
		out = append(out, fmt.Sprintf("Bought: %d books", purchases.TotalBooks))
	}
	if reading.TotalBooks > 0 || purchases.TotalBooks > 0 {
		out = append(out, "")
	}

	if len(reading.Items) > 0 {
		out = append(out, "READ:")
		for _, it := range reading.Items {
			out = append(out, formatItem(it, "•"), "")
		}
	}
	if len(purchases.Items) > 0 {
		out = append(out, "BOUGHT:")
		for _, it := range purchases.Items {
			out = append(out, formatItem(it, "•"), "")
		}
	}
	if len(reading.Items) == 0 && len(purchases.Items) == 0 {
		out = append(out, "No activity in "+monthName)
	}
	return strings.Join(out, "\n")
}

// CombinedDigest builds and formats both monthly reports for [since, until).
func (r *Reporter) CombinedDigest(since, until time.Time) (string, error) {
	reading, err := r.MonthlyReading(since, until)
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}
	purchases, err := r.MonthlyPurchases(since, until)
	if err != nil {
		return "", fmt.Errorf("purchases report: %w", err)
	}
	return FormatCombined(reading, purchases), nil
}

// SummaryText renders the at-a-glance library statistics block.
func (r *Reporter) SummaryText() (string, error) {
	sum, err := r.store.LibrarySummary()
	if err != nil {
		return "", err
	}
	if sum.TotalBooks == 0 {
		return "The library is empty.", nil
	}
	var out []string
	out = append(out, "LIBRARY SUMMARY")
	out = append(out, fmt.Sprintf("Total books: %d", sum.TotalBooks))
	out = append(out, fmt.Sprintf("Read: %d (%.2f%%)", sum.ReadBooks, sum.ReadPercent))
	if len(sum.Formats) > 0 {
		out = append(out, "", "By format:")
		for _, f := range []string{models.FormatPhysical, models.FormatDigital} {
			if n, ok := sum.Formats[f]; ok {
				out = append(out, fmt.Sprintf("  %s: %d", f, n))
			}
		}
	}
	if len(sum.Genres) > 0 {
		out = append(out, "", "Top genres:")
		top := sum.Genres
		if len(top) > 5 {
			top = top[:5]
		}
		for _, g := range top {
			out = append(out, fmt.Sprintf("  %s: %d", g.Genre, g.Count))
		}
	}
	if len(sum.RecentActivity) > 0 {
		out = append(out, "", "Last 30 days:")
		activity := sum.RecentActivity
		if len(activity) > 5 {
			activity = activity[:5]
		}
		for _, a := range activity {
			out = append(out, fmt.Sprintf("  %s: %d", a.EventType, a.Count))
		}
	}
	out = append(out, "", "Lists:")
	out = append(out, fmt.Sprintf("  to read: %d", sum.ToReadCount))
	out = append(out, fmt.Sprintf("  to buy: %d", sum.ToBuyCount))
	return strings.Join(out, "\n"), nil
}

// LogTailText renders the total event count and the last five events.
func (r *Reporter) LogTailText() (string, error) {
	total, err := r.store.CountEvents()
	if err != nil {
		return "", err
	}
	recent, err := r.store.RecentEvents(5)
	if err != nil {
		return "", err
	}
	var out []string
	out = append(out, "ACTIVITY")
	out = append(out, fmt.Sprintf("Total events: %d", total))
	out = append(out, "", "Most recent:")
	if len(recent) == 0 {
		out = append(out, "  none yet")
	}
	for _, e := range recent {
		line := fmt.Sprintf("  %s — %s", e.EventType, e.EventDate.Format("02.01.2006 15:04"))
		if e.BookID != nil {
			line += fmt.Sprintf(", book ID %d", *e.BookID)
		}
		if e.TitleSnapshot != "" {
			line += " (" + e.TitleSnapshot + ")"
		} else if e.BookID != nil || e.ListItemID != nil {
			line += " (unknown item)"
		}
		if e.Notes != "" {
			line += " — " + e.Notes
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n"), nil
}

// SplitMessage splits text at line boundaries so no part exceeds max
// characters. A single line longer than max becomes its own part.
func SplitMessage(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var (
		parts   []string
		current []string
		length  int
	)
	for _, line := range strings.Split(text, "\n") {
		lineLen := len(line) + 1
		if length+lineLen > max && len(current) > 0 {
			parts = append(parts, strings.Join(current, "\n"))
			current = []string{line}
			length = lineLen
		} else {
			current = append(current, line)
			length += lineLen
		}
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, "\n"))
	}
	return parts
}
