package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Actions answered by the page context.
const (
	ActionExtractContent   = "extractContent"
	ActionExtractSelection = "extractSelection"
	ActionCheckSelection   = "checkSelection"
)

// Actions answered by the background context.
const (
	ActionSaveToObsidian            = "saveToObsidian"
	ActionTestConnection            = "testConnection"
	ActionDownloadSingleImage       = "downloadSingleImage"
	ActionDownloadAndSaveImages     = "downloadAndSaveImages"
	ActionConvertImagesInBackground = "convertImagesInBackground"
	ActionFetchImageWithCookies     = "fetchImageWithCookies"
	ActionStoreImages               = "storeImages"
	ActionGetImages                 = "getImages"
	ActionClearImages               = "clearImages"
	ActionClip                      = "clip"
)

// Message is a flat JSON envelope: {"action": "...", ...payload}.
type Message struct {
	Action string
	raw    json.RawMessage
}

// NewMessage builds a message whose payload fields sit next to "action".
// payload must encode to a JSON object (or be nil).
func NewMessage(action string, payload any) (Message, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s payload: %w", action, err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return Message{}, fmt.Errorf("%s payload must be a JSON object: %w", action, err)
		}
	}
	name, _ := json.Marshal(action)
	fields["action"] = name

	raw, err := json.Marshal(fields)
	if err != nil {
		return Message{}, err
	}
	return Message{Action: action, raw: raw}, nil
}

// Decode unmarshals the payload fields into v.
func (m Message) Decode(v any) error {
	if len(m.raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.raw, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Action, err)
	}
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(struct {
		Action string `json:"action"`
	}{m.Action})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if head.Action == "" {
		return errors.New("message has no action")
	}
	m.Action = head.Action
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}
