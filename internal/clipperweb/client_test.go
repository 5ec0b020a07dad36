package clipperweb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const loginPage = `<html><body>
<form action="/ClipperWeb/account" method="post">
<input type="hidden" name="_csrf" value="tok-login"/>
<input type="text" name="email"/>
</form></body></html>`

const accountPage = `<html><body>
<input type="hidden" name="_csrf" value="tok-account"/>
<span class="d-inline-block">1234567890 - Commute card</span>
<span class="d-inline-block">Card balance</span>
<span class="d-inline-block">abc - not a serial</span>
<span class="d-inline-block">4445556667 - Spare</span>
</body></html>`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.host = srv.URL
	return c
}

func TestLoginPostsScrapedToken(t *testing.T) {
	var posted map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ClipperWeb/login.html", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "session-1"})
		w.Write([]byte(loginPage))
	})
	mux.HandleFunc("POST /ClipperWeb/account", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		posted = map[string]string{
			"_csrf":    r.PostFormValue("_csrf"),
			"email":    r.PostFormValue("email"),
			"password": r.PostFormValue("password"),
			"cookie":   r.Header.Get("Cookie"),
		}
	})

	c := newTestClient(t, mux)
	if err := c.Login(context.Background(), "rider@example.com", "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if posted["_csrf"] != "tok-login" {
		t.Errorf("posted csrf %q, want the scraped token", posted["_csrf"])
	}
	if posted["email"] != "rider@example.com" || posted["password"] != "hunter2" {
		t.Errorf("posted credentials %q/%q", posted["email"], posted["password"])
	}
	if !strings.Contains(posted["cookie"], "JSESSIONID=session-1") {
		t.Errorf("login POST carried cookie %q, want the session cookie", posted["cookie"])
	}
}

func TestLoginWithoutToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ClipperWeb/login.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>maintenance</body></html>"))
	})

	c := newTestClient(t, mux)
	err := c.Login(context.Background(), "rider@example.com", "hunter2")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("Login error = %v, want ErrLoginFailed", err)
	}
}

func TestCards(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ClipperWeb/account.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(accountPage))
	})

	c := newTestClient(t, mux)
	cards, err := c.Cards(context.Background())
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}

	want := []Card{
		{Serial: "1234567890", Nickname: "Commute card"},
		{Serial: "4445556667", Nickname: "Spare"},
	}
	if len(cards) != len(want) {
		t.Fatalf("got %d cards, want %d: %v", len(cards), len(want), cards)
	}
	for i := range want {
		if cards[i] != want[i] {
			t.Errorf("card %d = %+v, want %+v", i, cards[i], want[i])
		}
	}
}

func TestDownloadStatement(t *testing.T) {
	var posted map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ClipperWeb/account.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(accountPage))
	})
	mux.HandleFunc("POST /ClipperWeb/view/transactionHistory.pdf", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		posted = map[string]string{
			"_csrf":       r.PostFormValue("_csrf"),
			"cardNumber":  r.PostFormValue("cardNumber"),
			"rhStartDate": r.PostFormValue("rhStartDate"),
			"endDate":     r.PostFormValue("endDate"),
			"accept":      r.Header.Get("Accept"),
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 ride history"))
	})

	c := newTestClient(t, mux)
	card := Card{Serial: "1234567890", Nickname: "Commute card"}
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)

	body, name, err := c.DownloadStatement(context.Background(), card, from, to)
	if err != nil {
		t.Fatalf("DownloadStatement: %v", err)
	}
	if !strings.HasPrefix(string(body), "%PDF") {
		t.Errorf("body %q is not a PDF", body)
	}
	if name != "clipper-transactions-1234567890.pdf" {
		t.Errorf("suggested name = %q", name)
	}

	if posted["_csrf"] != "tok-account" {
		t.Errorf("posted csrf %q, want the account page token", posted["_csrf"])
	}
	if posted["cardNumber"] != "1234567890" {
		t.Errorf("posted card %q", posted["cardNumber"])
	}
	if posted["rhStartDate"] != "February 1, 2025" {
		t.Errorf("start date = %q, want long form", posted["rhStartDate"])
	}
	if posted["endDate"] != "February 28, 2025" {
		t.Errorf("end date = %q, want long form", posted["endDate"])
	}
	if posted["accept"] != "application/pdf" {
		t.Errorf("accept header = %q", posted["accept"])
	}
}

func TestDownloadStatementEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ClipperWeb/account.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(accountPage))
	})
	mux.HandleFunc("POST /ClipperWeb/view/transactionHistory.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	})

	c := newTestClient(t, mux)
	_, _, err := c.DownloadStatement(context.Background(), Card{Serial: "1"}, time.Time{}, time.Time{})
	if !errors.Is(err, ErrNoStatement) {
		t.Fatalf("error = %v, want ErrNoStatement", err)
	}
}

func TestDownloadStatementRejectsHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ClipperWeb/account.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(accountPage))
	})
	mux.HandleFunc("POST /ClipperWeb/view/transactionHistory.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>session expired</html>"))
	})

	c := newTestClient(t, mux)
	_, _, err := c.DownloadStatement(context.Background(), Card{Serial: "1"}, time.Time{}, time.Time{})
	if err == nil || !strings.Contains(err.Error(), "not a PDF") {
		t.Fatalf("error = %v, want a not-a-PDF error", err)
	}
}

func TestLastMonth(t *testing.T) {
	tests := []struct {
		now        time.Time
		start, end string
	}{
		{time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC), "2025-02-01", "2025-02-28"},
		{time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), "2024-12-01", "2024-12-31"},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-02-01", "2024-02-29"},
	}
	for _, tt := range tests {
		start, end := LastMonth(tt.now)
		if got := start.Format("2006-01-02"); got != tt.start {
			t.Errorf("LastMonth(%s) start = %s, want %s", tt.now.Format("2006-01-02"), got, tt.start)
		}
		if got := end.Format("2006-01-02"); got != tt.end {
			t.Errorf("LastMonth(%s) end = %s, want %s", tt.now.Format("2006-01-02"), got, tt.end)
		}
	}
}

func TestClipDate(t *testing.T) {
	if got := clipDate(time.Time{}); got != "" {
		t.Errorf("clipDate(zero) = %q, want empty", got)
	}
	if got := clipDate(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)); got != "March 5, 2025" {
		t.Errorf("clipDate = %q", got)
	}
}
