// Package calendar lists upcoming events through an authorized client.
// It is the single downstream consumer of a completed authorization.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const baseURL = "https://www.googleapis.com/calendar/v3"

// Event is one calendar entry. Start and End hold RFC 3339 timestamps,
// or bare dates for all-day events.
type Event struct {
	ID      string
	Summary string
	Start   string
	End     string
}

// Client talks to the provider's calendar API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a calendar client over the given authorized
// http.Client. If httpClient is nil, http.DefaultClient is used.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Upcoming returns up to max events from the primary calendar, starting
// now, ordered by start time.
func (c *Client) Upcoming(ctx context.Context, max int) ([]Event, error) {
	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(max))
	q.Set("orderBy", "startTime")
	q.Set("singleEvents", "true")
	q.Set("timeMin", time.Now().Format(time.RFC3339))

	endpoint := c.baseURL + "/calendars/primary/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading events response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(body, "error.message").Str; msg != "" {
			return nil, fmt.Errorf("calendar API returned %d: %s", resp.StatusCode, msg)
		}

		return nil, fmt.Errorf("calendar API returned %d", resp.StatusCode)
	}

	var events []Event
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		events = append(events, Event{
			ID:      item.Get("id").Str,
			Summary: item.Get("summary").Str,
			Start:   eventTime(item.Get("start")),
			End:     eventTime(item.Get("end")),
		})

		return true
	})

	return events, nil
}

// eventTime prefers the dateTime field, falling back to the bare date
// used for all-day events.
func eventTime(v gjson.Result) string {
	if dt := v.Get("dateTime").Str; dt != "" {
		return dt
	}

	return v.Get("date").Str
}
