package mangopaywebhook

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
)

// RawEvent is one notification as Mangopay sends it.
type RawEvent struct {
	EventType  string `json:"EventType"`
	ResourceID string `json:"RessourceId"`
	Date       int64  `json:"Date"`
}

// ParseRawEvent reads the notification from the query string, which is how
// Mangopay delivers hooks, or from a JSON body.
func ParseRawEvent(query url.Values, body []byte) (RawEvent, error) {
	event := RawEvent{
		EventType:  strings.TrimSpace(query.Get("EventType")),
		ResourceID: strings.TrimSpace(query.Get("RessourceId")),
	}
	if date := strings.TrimSpace(query.Get("Date")); date != "" {
		parsed, err := strconv.ParseInt(date, 10, 64)
		if err != nil {
			return RawEvent{}, rpc.BadArgs("Date must be a unix timestamp")
		}
		event.Date = parsed
	}

	if event.EventType == "" && len(bytes.TrimSpace(body)) > 0 {
		var fromBody struct {
			EventType   string          `json:"EventType"`
			RessourceID json.RawMessage `json:"RessourceId"`
			Date        int64           `json:"Date"`
		}
		if err := json.Unmarshal(body, &fromBody); err != nil {
			return RawEvent{}, rpc.BadArgs("malformed notification body")
		}
		event.EventType = strings.TrimSpace(fromBody.EventType)
		event.ResourceID = strings.Trim(strings.TrimSpace(string(fromBody.RessourceID)), `"`)
		event.Date = fromBody.Date
	}

	if event.EventType == "" || event.ResourceID == "" {
		return RawEvent{}, rpc.BadArgs("EventType and RessourceId are required")
	}
	return event, nil
}
