package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrPageMissing is returned when the requested page does not exist.
var ErrPageMissing = errors.New("page missing")

// EditError is an explicit failure reason reported by the edit API, as
// opposed to an unexpected response shape.
type EditError struct {
	Code string
	Info string
}

func (e *EditError) Error() string {
	return fmt.Sprintf("edit rejected: %s (%s)", e.Code, e.Info)
}

// Client talks to a MediaWiki action API endpoint.
type Client struct {
	endpoint  string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a client for the given api.php endpoint.
func NewClient(endpoint, userAgent string) *Client {
	endpoint = strings.TrimSuffix(endpoint, "/")
	return &Client{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 5), // 5 requests per second
	}
}

// GetLatestRevision fetches the current content of a page together with
// the base/current timestamps needed for a conflict-checked edit.
func (c *Client) GetLatestRevision(ctx context.Context, title string) (*Revision, error) {
	params := url.Values{
		"action":       {"query"},
		"titles":       {title},
		"prop":         {"revisions"},
		"rvprop":       {"content|timestamp"},
		"rvslots":      {"main"},
		"curtimestamp": {"1"},
	}

	var res queryResponse
	if err := c.get(ctx, params, &res); err != nil {
		return nil, err
	}
	if len(res.Query.Pages) == 0 {
		return nil, fmt.Errorf("empty page list for %q", title)
	}
	page := res.Query.Pages[0]
	if page.Missing || len(page.Revisions) == 0 {
		return nil, ErrPageMissing
	}
	return &Revision{
		Content:       page.Revisions[0].Slots.Main.Content,
		BaseTimestamp: page.Revisions[0].Timestamp,
		CurTimestamp:  res.CurTimestamp,
	}, nil
}

// EditPage saves a page. A nil error means the API reported Success; an
// *EditError carries an explicit failure reason.
func (c *Client) EditPage(ctx context.Context, req EditRequest) error {
	form := url.Values{
		"action":         {"edit"},
		"title":          {req.Title},
		"text":           {req.Text},
		"summary":        {req.Summary},
		"basetimestamp":  {req.BaseTimestamp},
		"starttimestamp": {req.CurTimestamp},
		"token":          {req.Token},
		"format":         {"json"},
		"formatversion":  {"2"},
	}
	if req.Minor {
		form.Set("minor", "1")
	}
	if req.Bot {
		form.Set("bot", "1")
	}

	var res editResponse
	if err := c.post(ctx, form, &res); err != nil {
		return err
	}
	if res.Error.Code != "" {
		return &EditError{Code: res.Error.Code, Info: res.Error.Info}
	}
	if res.Edit.Result != "Success" {
		return fmt.Errorf("edit failed with result %q", res.Edit.Result)
	}
	return nil
}

// QueryLogEvents fetches one page of the newest account-creation log
// events, returning the continuation marker for the next page ("" when
// exhausted).
func (c *Client) QueryLogEvents(ctx context.Context, cont string) ([]LogEvent, string, error) {
	params := url.Values{
		"action":  {"query"},
		"list":    {"logevents"},
		"leprop":  {"ids|title"},
		"letype":  {"newusers"},
		"lelimit": {"max"},
	}
	if cont != "" {
		params.Set("lecontinue", cont)
	}

	var res queryResponse
	if err := c.get(ctx, params, &res); err != nil {
		return nil, "", err
	}
	events := make([]LogEvent, 0, len(res.Query.LogEvents))
	for _, ev := range res.Query.LogEvents {
		if ev.Title == "" {
			continue
		}
		events = append(events, LogEvent{
			LogID: strconv.FormatInt(ev.LogID, 10),
			Title: ev.Title,
		})
	}
	return events, res.Continue.LeContinue, nil
}

// QueryRevisionsByIDs resolves revision ids to the usernames that made
// them. The API caps a single batch at 500 ids.
func (c *Client) QueryRevisionsByIDs(ctx context.Context, ids []string) ([]RevisionUser, error) {
	params := url.Values{
		"action": {"query"},
		"revids": {strings.Join(ids, "|")},
		"prop":   {"revisions"},
	}

	var res queryResponse
	if err := c.get(ctx, params, &res); err != nil {
		return nil, err
	}
	var users []RevisionUser
	for _, page := range res.Query.Pages {
		for _, rev := range page.Revisions {
			users = append(users, RevisionUser{
				RevisionID: strconv.FormatInt(rev.RevID, 10),
				Username:   rev.User,
			})
		}
	}
	return users, nil
}

// QueryBlocksByUsers looks up active local blocks for up to 500 users.
func (c *Client) QueryBlocksByUsers(ctx context.Context, users []string) ([]UserBlock, error) {
	params := url.Values{
		"action":  {"query"},
		"list":    {"blocks"},
		"bklimit": {"max"},
		"bkusers": {strings.Join(users, "|")},
		"bkprop":  {"user|timestamp|expiry|restrictions|flags"},
	}
	var res queryResponse
	if err := c.get(ctx, params, &res); err != nil {
		return nil, err
	}
	return c.decodeBlocks(res)
}

// QueryBlockByIP looks up the block covering a single IP, including
// range blocks containing it. Returns nil when the IP is not blocked.
func (c *Client) QueryBlockByIP(ctx context.Context, ip string) (*UserBlock, error) {
	params := url.Values{
		"action":  {"query"},
		"list":    {"blocks"},
		"bklimit": {"1"},
		"bkip":    {ip},
		"bkprop":  {"user|timestamp|expiry|restrictions|flags"},
	}
	var res queryResponse
	if err := c.get(ctx, params, &res); err != nil {
		return nil, err
	}
	blocks, err := c.decodeBlocks(res)
	if err != nil || len(blocks) == 0 {
		return nil, err
	}
	return &blocks[0], nil
}

func (c *Client) decodeBlocks(res queryResponse) ([]UserBlock, error) {
	blocks := make([]UserBlock, 0, len(res.Query.Blocks))
	for _, b := range res.Query.Blocks {
		ts, err := time.Parse(apiTime, b.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid block timestamp %q: %w", b.Timestamp, err)
		}
		blocks = append(blocks, UserBlock{
			User:      b.User,
			Timestamp: ts,
			Expiry:    b.Expiry,
			// Sitewide blocks carry an empty restrictions array, partial
			// blocks an object keyed by restriction type.
			Partial:       len(b.Restrictions) > 0 && b.Restrictions[0] == '{',
			AllowUserTalk: b.AllowUserTalk,
			NoEmail:       b.NoEmail,
			AnonOnly:      b.AnonOnly,
		})
	}
	return blocks, nil
}

// QueryGlobalLock reports whether the named account is globally locked.
func (c *Client) QueryGlobalLock(ctx context.Context, user string) (bool, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"globalallusers"},
		"agulimit": {"1"},
		"agufrom":  {user},
		"aguto":    {user},
		"aguprop":  {"lockinfo"},
	}
	var res queryResponse
	if err := c.get(ctx, params, &res); err != nil {
		return false, err
	}
	if len(res.Query.GlobalAllUsers) == 0 {
		return false, nil
	}
	// The API returns "locked": "" for locked accounts and omits the
	// field otherwise.
	return res.Query.GlobalAllUsers[0].Locked != nil, nil
}

// QueryGlobalBlockByIP looks up a global block covering the IP. Returns
// nil when there is none.
func (c *Client) QueryGlobalBlockByIP(ctx context.Context, ip string) (*GlobalBlock, error) {
	params := url.Values{
		"action":  {"query"},
		"list":    {"globalblocks"},
		"bgip":    {ip},
		"bglimit": {"1"},
		"bgprop":  {"address|expiry|timestamp"},
	}
	var res queryResponse
	if err := c.get(ctx, params, &res); err != nil {
		return nil, err
	}
	if len(res.Query.GlobalBlocks) == 0 {
		return nil, nil
	}
	gb := res.Query.GlobalBlocks[0]
	ts, err := time.Parse(apiTime, gb.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid global block timestamp %q: %w", gb.Timestamp, err)
	}
	return &GlobalBlock{Timestamp: ts, Expiry: gb.Expiry}, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
