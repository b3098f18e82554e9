package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookbot/pkg/models"
	"bookbot/pkg/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	return st
}

func addBook(t *testing.T, st *store.Store, b models.Book) *models.Book {
	t.Helper()
	if b.Format == "" {
		b.Format = models.FormatPhysical
	}
	require.NoError(t, st.CreateBook(&b))
	return &b
}

func event(t *testing.T, st *store.Store, bookID uint, eventType string, at time.Time, title string) {
	t.Helper()
	require.NoError(t, st.AppendEvent(&models.EventLogEntry{
		BookID:        &bookID,
		EventType:     eventType,
		EventDate:     at,
		TitleSnapshot: title,
	}))
}

func TestMonthBounds(t *testing.T) {
	now := time.Date(2024, time.March, 15, 13, 45, 0, 0, time.UTC)

	start := MonthStart(now)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), start)

	prevStart, prevEnd := PrevMonth(now)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), prevStart)
	assert.Equal(t, start, prevEnd)
}

func TestMonthlyReadingDedupesByBook(t *testing.T) {
	st := testStore(t)
	r := New(st)

	pages := 412
	book := addBook(t, st, models.Book{Title: "Dune", Authors: "Frank Herbert", Pages: &pages})

	since := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	event(t, st, book.ID, models.EventMarkedAsRead, since.AddDate(0, 0, 3), "Dune")
	event(t, st, book.ID, models.EventFinishedReading, since.AddDate(0, 0, 10), "Dune")
	// Outside the window.
	event(t, st, book.ID, models.EventFinishedReading, since.AddDate(0, -2, 0), "Dune")

	m, err := r.MonthlyReading(since, since.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, m.Items, 1)
	assert.Equal(t, 1, m.TotalBooks)
	assert.Equal(t, 412, m.TotalPages)
	// The latest event in the window wins.
	assert.Equal(t, since.AddDate(0, 0, 10).Unix(), m.Items[0].EventDate.Unix())
}

func TestMonthlyReadingFallsBackToSnapshot(t *testing.T) {
	st := testStore(t)
	r := New(st)

	book := addBook(t, st, models.Book{Title: "Ephemeral", Authors: "Gone"})
	since := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	event(t, st, book.ID, models.EventMarkedAsRead, since.AddDate(0, 0, 1), "Ephemeral")

	require.NoError(t, st.DeleteBook(book.ID))

	m, err := r.MonthlyReading(since, since.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, m.Items, 1)
	assert.True(t, m.Items[0].Missing)
	assert.Equal(t, "Ephemeral", m.Items[0].Title)

	digest := FormatCombined(m, &Monthly{Since: since})
	assert.Contains(t, digest, "no longer in the library")
}

func TestMonthlyPurchasesOnlyShopBooks(t *testing.T) {
	st := testStore(t)
	r := New(st)

	shop := addBook(t, st, models.Book{Title: "Bought", Authors: "A", Source: models.SourceShop})
	free := addBook(t, st, models.Book{Title: "Downloaded", Authors: "B", Format: models.FormatDigital, Source: models.SourceAO3})

	since := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	event(t, st, shop.ID, models.EventAdded, since.AddDate(0, 0, 1), "Bought")
	event(t, st, free.ID, models.EventAdded, since.AddDate(0, 0, 2), "Downloaded")

	m, err := r.MonthlyPurchases(since, since.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, m.Items, 1)
	assert.Equal(t, "Bought", m.Items[0].Title)
}

func TestFormatCombinedEmptyMonth(t *testing.T) {
	since := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	digest := FormatCombined(&Monthly{Since: since}, &Monthly{Since: since})
	assert.Contains(t, digest, "MONTHLY REPORT — March 2024")
	assert.Contains(t, digest, "No activity in March 2024")
}

func TestCombinedDigest(t *testing.T) {
	st := testStore(t)
	r := New(st)

	pages := 300
	book := addBook(t, st, models.Book{Title: "Dune", Authors: "Frank Herbert", Pages: &pages, Source: models.SourceShop})
	since := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	event(t, st, book.ID, models.EventMarkedAsRead, since.AddDate(0, 0, 5), "Dune")
	event(t, st, book.ID, models.EventAdded, since.AddDate(0, 0, 1), "Dune")

	digest, err := r.CombinedDigest(since, since.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Contains(t, digest, "READ:")
	assert.Contains(t, digest, "BOUGHT:")
	assert.Contains(t, digest, "Pages: 300")
}

func TestSummaryText(t *testing.T) {
	st := testStore(t)
	r := New(st)

	txt, err := r.SummaryText()
	require.NoError(t, err)
	assert.Equal(t, "The library is empty.", txt)

	addBook(t, st, models.Book{Title: "Dune", Authors: "Frank Herbert", Genre: "sci-fi", IsRead: true})
	addBook(t, st, models.Book{Title: "Worm", Authors: "Wildbow", Format: models.FormatDigital, Genre: "web serial"})

	txt, err = r.SummaryText()
	require.NoError(t, err)
	assert.Contains(t, txt, "Total books: 2")
	assert.Contains(t, txt, "Read: 1 (50.00%)")
	assert.Contains(t, txt, "physical: 1")
	assert.Contains(t, txt, "sci-fi: 1")
	assert.Contains(t, txt, "to read: 0")
}

func TestLogTailText(t *testing.T) {
	st := testStore(t)
	r := New(st)

	txt, err := r.LogTailText()
	require.NoError(t, err)
	assert.Contains(t, txt, "Total events: 0")
	assert.Contains(t, txt, "none yet")

	book := addBook(t, st, models.Book{Title: "Dune", Authors: "Frank Herbert"})
	for i := 0; i < 7; i++ {
		event(t, st, book.ID, models.EventStartedReading, time.Now().Add(time.Duration(i)*time.Minute), "Dune")
	}
	// One event lost its snapshot.
	require.NoError(t, st.AppendEvent(&models.EventLogEntry{
		BookID:    &book.ID,
		EventType: models.EventReviewed,
		EventDate: time.Now().Add(time.Hour),
	}))
	require.NoError(t, st.DeleteBook(book.ID))

	txt, err = r.LogTailText()
	require.NoError(t, err)
	assert.Contains(t, txt, "Total events: 8")
	assert.Contains(t, txt, "(unknown item)")
	// Only the last five events are listed.
	assert.Equal(t, 5, strings.Count(txt, "book ID"))
}

func TestSplitMessage(t *testing.T) {
	short := "one\ntwo"
	assert.Equal(t, []string{short}, SplitMessage(short, 4000))

	long := strings.Repeat("0123456789\n", 10)
	parts := SplitMessage(strings.TrimSuffix(long, "\n"), 30)
	assert.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 30)
		// Lines are never cut mid-way.
		for _, line := range strings.Split(p, "\n") {
			assert.Equal(t, "0123456789", line)
		}
	}

	oversized := strings.Repeat("x", 50)
	parts = SplitMessage("short\n"+oversized, 30)
	assert.Equal(t, []string{"short", oversized}, parts)
}
