package mediawiki

import (
	"encoding/json"
	"time"
)

// Revision is the latest revision of a page together with the
// timestamps the edit API needs for conflict detection.
type Revision struct {
	Content       string
	BaseTimestamp string
	CurTimestamp  string
}

// EditRequest carries everything needed to save a page.
type EditRequest struct {
	Title         string
	Text          string
	Summary       string
	Minor         bool
	Bot           bool
	BaseTimestamp string
	CurTimestamp  string
	Token         string
}

// LogEvent is one entry of a log-events query.
type LogEvent struct {
	LogID string
	Title string
}

// RevisionUser maps a revision id to the username that made it.
type RevisionUser struct {
	RevisionID string
	Username   string
}

// UserBlock is one entry of a local block query. For IP queries User is
// the blocked target, which may be a range covering the queried address.
type UserBlock struct {
	User          string
	Timestamp     time.Time
	Expiry        string
	Partial       bool
	AllowUserTalk bool
	NoEmail       bool
	AnonOnly      bool
}

// GlobalBlock is a positive global-block lookup result.
type GlobalBlock struct {
	Timestamp time.Time
	Expiry    string
}

// The expiry value the API returns for blocks with no end.
const ExpiryInfinity = "infinity"

// apiTime is the ISO 8601 layout the action API uses.
const apiTime = "2006-01-02T15:04:05Z"

// Response envelopes, formatversion=2.

type queryResponse struct {
	CurTimestamp string `json:"curtimestamp"`
	Continue     struct {
		LeContinue string `json:"lecontinue"`
	} `json:"continue"`
	Query struct {
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Revisions []struct {
				RevID     int64  `json:"revid"`
				User      string `json:"user"`
				Timestamp string `json:"timestamp"`
				Slots     struct {
					Main struct {
						Content string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
		LogEvents []struct {
			LogID int64  `json:"logid"`
			Title string `json:"title"`
		} `json:"logevents"`
		Blocks []struct {
			User          string          `json:"user"`
			Timestamp     string          `json:"timestamp"`
			Expiry        string          `json:"expiry"`
			Restrictions  json.RawMessage `json:"restrictions"`
			AllowUserTalk bool            `json:"allowusertalk"`
			NoEmail       bool            `json:"noemail"`
			AnonOnly      bool            `json:"anononly"`
		} `json:"blocks"`
		GlobalAllUsers []struct {
			Name   string  `json:"name"`
			Locked *string `json:"locked"`
		} `json:"globalallusers"`
		GlobalBlocks []struct {
			Address   string `json:"address"`
			Timestamp string `json:"timestamp"`
			Expiry    string `json:"expiry"`
		} `json:"globalblocks"`
	} `json:"query"`
}

type editResponse struct {
	Edit struct {
		Result string `json:"result"`
	} `json:"edit"`
	Error struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}
