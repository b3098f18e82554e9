// Package isbn looks up book metadata by ISBN through the Open Library
// books API.
package isbn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookbot/pkg/breaker"
)

// ErrNotFound means the ISBN is unknown to Open Library.
var ErrNotFound = errors.New("book not found")

// ErrBadISBN means the input did not normalize to a 10 or 13 digit ISBN.
var ErrBadISBN = errors.New("invalid isbn")

const defaultBaseURL = "https://openlibrary.org"

// Result is the metadata extracted from a lookup, already shaped for a
// physical-format book record.
type Result struct {
	ISBN      string
	Title     string
	Authors   string
	Publisher string
	Year      *int
	Pages     *int
}

// Client queries Open Library. The breaker opens after repeated upstream
// failures so a flapping API fails fast instead of hanging every intake.
type Client struct {
	httpClient *http.Client
	breaker    *breaker.Breaker
	baseURL    string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    breaker.New(3, 30*time.Second),
		baseURL:    defaultBaseURL,
	}
}

// NewClientWithBaseURL is used by tests to point at a local server.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// Normalize strips everything but digits and requires an ISBN-10 or
// ISBN-13 length.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	isbn := b.String()
	if len(isbn) != 10 && len(isbn) != 13 {
		return "", ErrBadISBN
	}
	return isbn, nil
}

type apiBook struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	PublishDate   string `json:"publish_date"`
	NumberOfPages int    `json:"number_of_pages"`
}

// Lookup fetches metadata for a normalized ISBN.
func (c *Client) Lookup(ctx context.Context, isbn string) (*Result, error) {
	var result *Result
	err := c.breaker.Do(func() error {
		url := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data", c.baseURL, isbn)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("open library request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("open library status %d", resp.StatusCode)
		}

		var payload map[string]apiBook
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("decode open library response: %w", err)
		}
		book, ok := payload["ISBN:"+isbn]
		if !ok {
			result = nil
			return nil
		}
		result = mapResult(isbn, book)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNotFound
	}
	return result, nil
}

func mapResult(isbn string, book apiBook) *Result {
	r := &Result{ISBN: isbn, Title: book.Title}

	var authors []string
	for _, a := range book.Authors {
		authors = append(authors, a.Name)
	}
	r.Authors = strings.Join(authors, ", ")

	var publishers []string
	for _, p := range book.Publishers {
		publishers = append(publishers, p.Name)
	}
	r.Publisher = strings.Join(publishers, ", ")

	// Publish dates come in many shapes; the year is the trailing 4 digits.
	if len(book.PublishDate) >= 4 {
		if y, err := strconv.Atoi(book.PublishDate[len(book.PublishDate)-4:]); err == nil && y > 1000 && y <= 2030 {
			r.Year = &y
		}
	}
	if book.NumberOfPages > 0 {
		pages := book.NumberOfPages
		r.Pages = &pages
	}
	return r
}
