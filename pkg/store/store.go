package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"bookbot/pkg/models"
)

// ErrNotFound is returned when an operation targets a row that does not exist.
var ErrNotFound = errors.New("not found")

// ErrIntegrity is returned when a write would violate a data invariant,
// e.g. a second active to-read entry for the same book.
var ErrIntegrity = errors.New("integrity violation")

// Config selects the database driver and its connection parameters.
// Sqlite needs only Path; postgres uses the host/user fields.
type Config struct {
	Driver   string // "sqlite" or "postgres"
	Path     string // sqlite file path, ":memory:" for tests
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Store is the entity store: books, the two intent lists and the append-only
// event log. Every exported method runs as one atomic unit; multi-row
// mutations go through WithTx.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database, applies migrations and returns
// the store. Postgres connections are retried because the database container
// may still be starting.
func Open(cfg Config) (*Store, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Driver {
	case "", "sqlite":
		if cfg.Path != ":memory:" && cfg.Path != "" {
			if mkErr := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); mkErr != nil {
				return nil, fmt.Errorf("create database directory: %w", mkErr)
			}
		}
		path := cfg.Path
		if path == "" {
			path = "data/library.db"
		}
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
		maxRetries := 10
		for i := 0; i < maxRetries; i++ {
			db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
			if err == nil {
				break
			}
			log.Printf("Database connection attempt %d/%d failed: %v", i+1, maxRetries, err)
			if i < maxRetries-1 {
				time.Sleep(5 * time.Second)
			}
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	err = db.AutoMigrate(
		&models.Book{},
		&models.ToBuyEntry{},
		&models.ToReadEntry{},
		&models.EventLogEntry{},
	)
	if err != nil {
		return nil, fmt.Errorf("database migration: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the underlying connection is alive.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// WithTx runs fn inside a single transaction. Any error from fn rolls the
// whole transaction back, so a record insert and its audit entry either both
// land or neither does.
func (s *Store) WithTx(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// ---- books ----

func (s *Store) CreateBook(b *models.Book) error {
	if err := s.db.Create(b).Error; err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

func (s *Store) GetBook(id uint) (*models.Book, error) {
	var b models.Book
	if err := s.db.First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBooks() ([]models.Book, error) {
	var books []models.Book
	if err := s.db.Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// GetBooksByIDs returns the still-existing books among ids, keyed by id.
// Missing ids are simply absent from the map; callers fall back to event
// snapshots for those.
func (s *Store) GetBooksByIDs(ids []uint) (map[uint]models.Book, error) {
	if len(ids) == 0 {
		return map[uint]models.Book{}, nil
	}
	var books []models.Book
	if err := s.db.Where("id IN ?", ids).Find(&books).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]models.Book, len(books))
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func (s *Store) UpdateBook(id uint, patch map[string]interface{}) error {
	res := s.db.Model(&models.Book{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteBook(id uint) error {
	res := s.db.Delete(&models.Book{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchBooks matches every whitespace-separated word of query against the
// book's title, authors and series name, case-insensitively. At most ten
// matches are returned.
func (s *Store) SearchBooks(query string) ([]models.Book, error) {
	var books []models.Book
	if err := s.db.Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return filterBooks(books, query), nil
}

// SearchBooksNotInToRead is SearchBooks restricted to books that are not
// already on the to-read list.
func (s *Store) SearchBooksNotInToRead(query string) ([]models.Book, error) {
	var books []models.Book
	err := s.db.
		Joins("LEFT JOIN to_read_entries ON to_read_entries.book_id = books.id").
		Where("to_read_entries.id IS NULL").
		Order("books.title").
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return filterBooks(books, query), nil
}

func filterBooks(books []models.Book, query string) []models.Book {
	words := strings.Fields(strings.ToLower(query))
	var filtered []models.Book
	for _, b := range books {
		haystack := strings.ToLower(b.Title + " " + b.Authors + " " + b.SeriesName)
		ok := true
		for _, w := range words {
			if !strings.Contains(haystack, w) {
				ok = false
				break
			}
		}
		if ok {
			filtered = append(filtered, b)
			if len(filtered) >= 10 {
				break
			}
		}
	}
	return filtered
}

// DistinctGenres returns the non-empty genres already in the library,
// most common first. The intake genre prompt offers these as suggestions.
func (s *Store) DistinctGenres() ([]string, error) {
	var genres []string
	err := s.db.Model(&models.Book{}).
		Where("genre IS NOT NULL AND genre != ''").
		Group("genre").
		Order("COUNT(DISTINCT id) DESC").
		Pluck("genre", &genres).Error
	if err != nil {
		return nil, err
	}
	return genres, nil
}

// ---- to-buy list ----

func (s *Store) CreateToBuy(e *models.ToBuyEntry) error {
	if e.Authors == "" && e.Title == "" {
		return fmt.Errorf("%w: to-buy entry needs authors or title", ErrIntegrity)
	}
	if err := s.db.Create(e).Error; err != nil {
		return fmt.Errorf("create to-buy entry: %w", err)
	}
	return nil
}

func (s *Store) GetToBuy(id uint) (*models.ToBuyEntry, error) {
	var e models.ToBuyEntry
	if err := s.db.First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListToBuy() ([]models.ToBuyEntry, error) {
	var entries []models.ToBuyEntry
	if err := s.db.Order("priority DESC, added_at ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) DeleteToBuy(id uint) error {
	res := s.db.Delete(&models.ToBuyEntry{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateToBuyPriority(id uint, priority int) error {
	res := s.db.Model(&models.ToBuyEntry{}).Where("id = ?", id).Update("priority", priority)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountToBuy() (int64, error) {
	var n int64
	err := s.db.Model(&models.ToBuyEntry{}).Count(&n).Error
	return n, err
}

// ---- to-read list ----

// ToReadItem is a to-read entry joined with its live book row.
type ToReadItem struct {
	Entry models.ToReadEntry
	Book  models.Book
}

// CreateToRead enforces the referential rules at the store boundary:
// the book must exist and must not already be on the list.
func (s *Store) CreateToRead(e *models.ToReadEntry) error {
	if _, err := s.GetBook(e.BookID); err != nil {
		return err
	}
	var existing models.ToReadEntry
	err := s.db.Where("book_id = ?", e.BookID).First(&existing).Error
	if err == nil {
		return fmt.Errorf("%w: book %d is already on the to-read list", ErrIntegrity, e.BookID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err := s.db.Create(e).Error; err != nil {
		return fmt.Errorf("create to-read entry: %w", err)
	}
	return nil
}

func (s *Store) GetToRead(id uint) (*models.ToReadEntry, error) {
	var e models.ToReadEntry
	if err := s.db.First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListToRead() ([]ToReadItem, error) {
	var entries []models.ToReadEntry
	if err := s.db.Order("priority DESC, added_at ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	items := make([]ToReadItem, 0, len(entries))
	for _, e := range entries {
		item := ToReadItem{Entry: e}
		if b, err := s.GetBook(e.BookID); err == nil {
			item.Book = *b
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) DeleteToRead(id uint) error {
	res := s.db.Delete(&models.ToReadEntry{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateToReadPriority(id uint, priority int) error {
	res := s.db.Model(&models.ToReadEntry{}).Where("id = ?", id).Update("priority", priority)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountToRead() (int64, error) {
	var n int64
	err := s.db.Model(&models.ToReadEntry{}).Count(&n).Error
	return n, err
}

// ---- event log ----

// AppendEvent inserts one audit record. The log is never updated or deleted.
func (s *Store) AppendEvent(e *models.EventLogEntry) error {
	if err := s.db.Create(e).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// EventFilter narrows QueryEvents. Zero values mean "no restriction".
type EventFilter struct {
	Types []string
	Since time.Time
	Until time.Time
}

func (s *Store) QueryEvents(f EventFilter) ([]models.EventLogEntry, error) {
	q := s.db.Model(&models.EventLogEntry{})
	if len(f.Types) > 0 {
		q = q.Where("event_type IN ?", f.Types)
	}
	if !f.Since.IsZero() {
		q = q.Where("event_date >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("event_date < ?", f.Until)
	}
	var events []models.EventLogEntry
	if err := q.Order("event_date DESC, id DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) CountEvents() (int64, error) {
	var n int64
	err := s.db.Model(&models.EventLogEntry{}).Count(&n).Error
	return n, err
}

func (s *Store) RecentEvents(limit int) ([]models.EventLogEntry, error) {
	var events []models.EventLogEntry
	err := s.db.Order("event_date DESC, id DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ---- aggregate summary ----

// Summary is the at-a-glance library statistics block.
type Summary struct {
	TotalBooks     int64
	ReadBooks      int64
	ReadPercent    float64
	Formats        map[string]int64
	Genres         []GenreCount
	ToReadCount    int64
	ToBuyCount     int64
	RecentActivity []ActivityCount
}

type GenreCount struct {
	Genre string
	Count int64
}

type ActivityCount struct {
	EventType string
	Count     int64
}

func (s *Store) LibrarySummary() (*Summary, error) {
	sum := &Summary{Formats: map[string]int64{}}

	if err := s.db.Model(&models.Book{}).Count(&sum.TotalBooks).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Book{}).Where("is_read = ?", true).Count(&sum.ReadBooks).Error; err != nil {
		return nil, err
	}
	if sum.TotalBooks > 0 {
		sum.ReadPercent = float64(sum.ReadBooks) / float64(sum.TotalBooks) * 100
	}

	type formatRow struct {
		Format string
		Count  int64
	}
	var formats []formatRow
	err := s.db.Model(&models.Book{}).
		Select("format, COUNT(*) as count").
		Group("format").
		Order("count DESC").
		Scan(&formats).Error
	if err != nil {
		return nil, err
	}
	for _, f := range formats {
		sum.Formats[f.Format] = f.Count
	}

	err = s.db.Model(&models.Book{}).
		Select("genre, COUNT(DISTINCT id) as count").
		Where("genre IS NOT NULL AND genre != ''").
		Group("genre").
		Order("count DESC").
		Scan(&sum.Genres).Error
	if err != nil {
		return nil, err
	}

	var errCount error
	if sum.ToReadCount, errCount = s.CountToRead(); errCount != nil {
		return nil, errCount
	}
	if sum.ToBuyCount, errCount = s.CountToBuy(); errCount != nil {
		return nil, errCount
	}

	err = s.db.Model(&models.EventLogEntry{}).
		Select("event_type, COUNT(*) as count").
		Where("event_date >= ?", time.Now().AddDate(0, 0, -30)).
		Group("event_type").
		Order("count DESC").
		Scan(&sum.RecentActivity).Error
	if err != nil {
		return nil, err
	}

	return sum, nil
}
