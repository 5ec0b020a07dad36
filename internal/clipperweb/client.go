// Package clipperweb drives the clippercard.com account site the way a
// browser does: a cookie session, CSRF tokens scraped from the pages,
// and form posts against the ride-history endpoint.
package clipperweb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultHost = "https://www.clippercard.com"
	userAgent   = "clippertv-downloader/0.1"

	// The site serves statements up to a few MB; anything larger is
	// not a statement.
	maxStatementSize = 32 << 20
)

var (
	// ErrLoginFailed covers every way a sign-in can go wrong, so the
	// scheduler can tell a bad account from a bad download.
	ErrLoginFailed = errors.New("clippercard login failed")

	// ErrNoStatement means the site returned an empty document for the
	// requested range. Cards with no activity do this.
	ErrNoStatement = errors.New("no statement available")
)

// Card is one Clipper card listed on an account page.
type Card struct {
	Serial   string `json:"serial"`
	Nickname string `json:"nickname"`
}

// Client holds one signed-in ClipperWeb session.
type Client struct {
	http *http.Client
	host string
}

// New returns a client with a fresh cookie session.
func New() (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		http: &http.Client{Jar: jar, Timeout: 30 * time.Second},
		host: defaultHost,
	}, nil
}

// Login signs in and keeps the session cookie for later calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	doc, err := c.getDocument(ctx, "/ClipperWeb/login.html")
	if err != nil {
		return fmt.Errorf("%w: fetch login page: %v", ErrLoginFailed, err)
	}
	csrf, err := csrfToken(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	form := url.Values{
		"_csrf":    {csrf},
		"email":    {email},
		"password": {password},
	}
	resp, err := c.postForm(ctx, "/ClipperWeb/account", "/ClipperWeb/login.html", form, "")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatementSize))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}
	return nil
}

// Cards lists the cards on the signed-in account. The account page
// renders each card as "serial - nickname"; anything else in the same
// span class is skipped.
func (c *Client) Cards(ctx context.Context) ([]Card, error) {
	doc, err := c.getDocument(ctx, "/ClipperWeb/account.html")
	if err != nil {
		return nil, fmt.Errorf("fetch account page: %w", err)
	}

	var cards []Card
	doc.Find("span.d-inline-block").Each(func(_ int, s *goquery.Selection) {
		serial, nickname, ok := strings.Cut(strings.TrimSpace(s.Text()), " - ")
		if ok && isDigits(serial) {
			cards = append(cards, Card{Serial: serial, Nickname: nickname})
		}
	})
	return cards, nil
}

// DownloadStatement fetches the ride-history PDF for one card over a
// date range and returns the bytes plus a suggested file name. A zero
// from or to leaves that end of the range to the site's default.
func (c *Client) DownloadStatement(ctx context.Context, card Card, from, to time.Time) ([]byte, string, error) {
	// The history form wants a fresh CSRF token from the account page.
	doc, err := c.getDocument(ctx, "/ClipperWeb/account.html")
	if err != nil {
		return nil, "", fmt.Errorf("refresh account page: %w", err)
	}
	csrf, err := csrfToken(doc)
	if err != nil {
		return nil, "", err
	}

	// The form repeats each bound under three names; the site checks
	// all of them.
	start, end := clipDate(from), clipDate(to)
	form := url.Values{
		"_csrf":          {csrf},
		"cardNumber":     {card.Serial},
		"cardNickName":   {card.Nickname},
		"rhStartDate":    {start},
		"startDateValue": {start},
		"startDate":      {start},
		"rhEndDate":      {end},
		"endDateValue":   {end},
		"endDate":        {end},
	}
	resp, err := c.postForm(ctx, "/ClipperWeb/view/transactionHistory.pdf", "/ClipperWeb/account.html", form, "application/pdf")
	if err != nil {
		return nil, "", fmt.Errorf("download statement for card %s: %w", card.Serial, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download statement for card %s: status %d", card.Serial, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatementSize))
	if err != nil {
		return nil, "", fmt.Errorf("download statement for card %s: %w", card.Serial, err)
	}
	if len(body) == 0 {
		return nil, "", fmt.Errorf("card %s: %w", card.Serial, ErrNoStatement)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("%PDF")) {
		return nil, "", fmt.Errorf("card %s: response is not a PDF (content type %s)", card.Serial, resp.Header.Get("Content-Type"))
	}

	return body, fmt.Sprintf("clipper-transactions-%s.pdf", card.Serial), nil
}

// LastMonth returns the first and last day of the month before now,
// the range the monthly download uses.
func LastMonth(now time.Time) (time.Time, time.Time) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := first.AddDate(0, 0, -1)
	return time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, now.Location()), end
}

// clipDate renders a date the way the history form expects, like
// "January 2, 2025". Zero means no bound.
func clipDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}

func csrfToken(doc *goquery.Document) (string, error) {
	token, ok := doc.Find(`input[name="_csrf"]`).First().Attr("value")
	if !ok || token == "" {
		return "", errors.New("csrf token not found in page")
	}
	return token, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Client) getDocument(ctx context.Context, path string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d for %s", resp.StatusCode, path)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxStatementSize))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func (c *Client) postForm(ctx context.Context, path, referer string, form url.Values, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.host+referer)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.http.Do(req)
}
