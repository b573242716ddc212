package controller

import "encoding/json"

// Outbound messages posted to connected clients.

type CachesCleared struct{}

func (CachesCleared) MessageType() string { return "CACHES_CLEARED" }

func (m CachesCleared) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{m.MessageType()})
}

type ModelCached struct {
	ModelID string
	Success int
	Total   int
}

func (ModelCached) MessageType() string { return "MODEL_CACHED" }

func (m ModelCached) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		ModelID string `json:"modelId"`
		Success int    `json:"success"`
		Total   int    `json:"total"`
	}{m.MessageType(), m.ModelID, m.Success, m.Total})
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type Notification struct {
	Title      string
	Body       string
	PrimaryKey string
	Actions    []NotificationAction
}

func (Notification) MessageType() string { return "NOTIFICATION" }

func (m Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string               `json:"type"`
		Title   string               `json:"title"`
		Body    string               `json:"body"`
		Data    map[string]string    `json:"data"`
		Actions []NotificationAction `json:"actions"`
	}{m.MessageType(), m.Title, m.Body, map[string]string{"primaryKey": m.PrimaryKey}, m.Actions})
}

// Focus asks one client to bring itself to the foreground.
type Focus struct {
	URL string
}

func (Focus) MessageType() string { return "FOCUS" }

func (m Focus) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}{m.MessageType(), m.URL})
}
