package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	"github.com/dukerupert/daybook/internal/model"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at another Postmark-compatible endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

// NewClient returns a Postmark client. baseURL is the public address of the
// calendar, used for links in mails.
func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// SendBookingReceived tells an admin that a request is waiting for review.
func (c *Client) SendBookingReceived(toEmail string, day model.DayKey, act model.Activity) error {
	requester := "someone"
	if act.BookedBy != nil {
		requester = fmt.Sprintf("%s <%s>", act.BookedBy.Name, act.BookedBy.Email)
	}
	link := fmt.Sprintf("%s/admin/calendar/%04d/%02d", c.baseURL, day.Year, int(day.Month))

	subject := fmt.Sprintf("New booking request for %s", day)
	textBody := fmt.Sprintf(
		"%s asked to book %q (%s) on %s from %s to %s.\n\n%s\n\nReview it at %s",
		requester, act.Title, act.ActivityType, day, act.StartTime, act.EndTime, notesText(act), link,
	)
	htmlBody := fmt.Sprintf(
		`<p>%s asked to book <strong>%s</strong> (%s) on %s from %s to %s.</p><p>%s</p><p><a href="%s">Review the request</a></p>`,
		html.EscapeString(requester), html.EscapeString(act.Title), html.EscapeString(act.ActivityType),
		day, html.EscapeString(act.StartTime), html.EscapeString(act.EndTime),
		html.EscapeString(notesText(act)), link,
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      "booking-received",
	})
}

// SendBookingDecision tells the requester whether their booking was approved.
func (c *Client) SendBookingDecision(day model.DayKey, act model.Activity, approved bool) error {
	if act.BookedBy == nil || act.BookedBy.Email == "" {
		return fmt.Errorf("send booking decision: activity %s has no requester", act.ID)
	}

	subject := fmt.Sprintf("Your booking for %s was declined", day)
	outcome := "could not be accommodated"
	tag := "booking-declined"
	if approved {
		subject = fmt.Sprintf("Your booking for %s is confirmed", day)
		outcome = "is confirmed"
		tag = "booking-approved"
	}

	textBody := fmt.Sprintf(
		"Hi %s,\n\nYour request %q on %s from %s to %s %s.",
		act.BookedBy.Name, act.Title, day, act.StartTime, act.EndTime, outcome,
	)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>Your request <strong>%s</strong> on %s from %s to %s %s.</p>`,
		html.EscapeString(act.BookedBy.Name), html.EscapeString(act.Title), day,
		html.EscapeString(act.StartTime), html.EscapeString(act.EndTime), outcome,
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       act.BookedBy.Email,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      tag,
	})
}

func notesText(act model.Activity) string {
	if act.Notes == nil {
		return "No description given."
	}
	return *act.Notes
}

func (c *Client) send(payload postmarkEmail) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
