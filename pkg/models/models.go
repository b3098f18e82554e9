package models

import (
	"time"
)

const (
	FormatPhysical = "physical"
	FormatDigital  = "digital"
)

const (
	SourceShop        = "shop"
	SourceAuthorToday = "author.today"
	SourceFicbook     = "ficbook"
	SourceAO3         = "ao3"
)

// Sources is the closed set of accepted book sources.
var Sources = []string{SourceShop, SourceAuthorToday, SourceFicbook, SourceAO3}

// Event types recorded in the book log. The log is append-only.
const (
	EventAdded              = "added"
	EventStartedReading     = "started_reading"
	EventFinishedReading    = "finished_reading"
	EventReviewed           = "reviewed"
	EventMovedToReadList    = "moved_to_read_list"
	EventAddedToBuyList     = "added_to_buy_list"
	EventRemovedFromBuyList = "removed_from_buy_list"
	EventMovedFromBuyToLib  = "moved_from_buy_to_library"
	EventAddedToReadList    = "added_to_read_list"
	EventRemovedFromReadLst = "removed_from_read_list"
	EventMarkedAsRead       = "marked_as_read"
	EventPriorityChanged    = "priority_changed"
)

// Book is one catalogued library item. Format-dependent columns are kept
// mutually exclusive by the intake flow, not by the schema: a digital book
// never carries ISBN/Year/Pages/Publisher and a physical one never carries
// CharCount/URL.
type Book struct {
	ID           uint   `gorm:"primaryKey"`
	Authors      string `gorm:"not null"`
	Title        string `gorm:"not null"`
	Description  string
	ISBN         string
	Format       string `gorm:"size:20;not null;check:format IN ('physical','digital')"`
	Source       string `gorm:"size:20"`
	Year         *int   `gorm:"check:year > 1000 AND year <= 2030"`
	Pages        *int   `gorm:"check:pages > 0"`
	CharCount    *int   `gorm:"check:char_count >= 0"`
	Publisher    string
	Genre        string
	URL          string
	SeriesName   string
	SeriesNumber *int
	IsRead       bool      `gorm:"default:false"`
	CreatedAt    time.Time // set once on insert
}

// ToBuyEntry is an intended purchase. At least one of Authors/Title must be
// set; that invariant lives in the intake validation, not here.
type ToBuyEntry struct {
	ID       uint `gorm:"primaryKey"`
	Authors  string
	Title    string
	Notes    string
	Priority int       `gorm:"default:1;check:priority >= 1 AND priority <= 5"`
	AddedAt  time.Time `gorm:"autoCreateTime"`
}

// ToReadEntry references an existing Book the user intends to read.
// The unique index keeps a book from appearing twice in the active set.
type ToReadEntry struct {
	ID       uint `gorm:"primaryKey"`
	BookID   uint `gorm:"not null;uniqueIndex"`
	Notes    string
	Priority int       `gorm:"default:1;check:priority >= 1 AND priority <= 5"`
	AddedAt  time.Time `gorm:"autoCreateTime"`
}

// EventLogEntry is one append-only audit record. BookID and ListItemID are
// weak references: the referenced row may be deleted later, so the entry
// carries a snapshot of the display fields taken at write time.
type EventLogEntry struct {
	ID              uint  `gorm:"primaryKey"`
	BookID          *uint `gorm:"index"`
	ListItemID      *uint
	EventType       string    `gorm:"size:40;not null;index"`
	EventDate       time.Time `gorm:"autoCreateTime;index"`
	Notes           string
	TitleSnapshot   string
	AuthorsSnapshot string
}
