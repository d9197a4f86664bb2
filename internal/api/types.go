package api

import (
	"bytes"
	"encoding/json"

	"github.com/storyhive/storyhive/internal/storage"
)

// ErrorFlag tolerates both shapes the service emits for the "error" field:
// a boolean on ordinary responses and the string "offline" on synthesized
// degraded responses.
type ErrorFlag struct {
	Failed  bool
	Offline bool
}

func (f *ErrorFlag) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f.Offline = s == "offline"
		f.Failed = false
		return nil
	}
	return json.Unmarshal(data, &f.Failed)
}

func (f ErrorFlag) MarshalJSON() ([]byte, error) {
	if f.Offline {
		return json.Marshal("offline")
	}
	return json.Marshal(f.Failed)
}

// StoryDraft is a story submission: description, photo, optional coordinates.
type StoryDraft struct {
	Description string
	Photo       []byte
	PhotoName   string
	Lat         *float64
	Lon         *float64
}

// StoriesResponse is the list envelope returned by GET /stories. The same
// shape is served by the cache layer when the network is unavailable.
type StoriesResponse struct {
	Error     ErrorFlag       `json:"error"`
	Message   string          `json:"message"`
	ListStory []storage.Story `json:"listStory"`
}

type storyDetailResponse struct {
	Error   ErrorFlag     `json:"error"`
	Message string        `json:"message"`
	Story   storage.Story `json:"story"`
}

type messageResponse struct {
	Error   ErrorFlag `json:"error"`
	Message string    `json:"message"`
}

// LoginResult carries the session issued by POST /login.
type LoginResult struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Token  string `json:"token"`
}

type loginResponse struct {
	Error       ErrorFlag   `json:"error"`
	Message     string      `json:"message"`
	LoginResult LoginResult `json:"loginResult"`
}

// PushKeys are the client keys of a web-push subscription.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is the payload for the push subscription endpoints.
type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}
