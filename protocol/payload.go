package protocol

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoginPayload is carried by TypeLogin frames.
type LoginPayload struct {
	ClientID string `json:"client_id"`
	Password string `json:"password"`
}

// EventPayload is carried by TypeEvent frames.
type EventPayload struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorPayload is carried by TypeError frames.
type ErrorPayload struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

// EncodeLogin builds a login frame with a JSON payload.
func EncodeLogin(sequence uint32, clientID, password string) ([]byte, error) {
	data, err := json.Marshal(LoginPayload{ClientID: clientID, Password: password})
	if err != nil {
		return nil, fmt.Errorf("marshal login payload: %w", err)
	}
	return Encode(TypeLogin, sequence, data)
}

// EncodeEvent builds an event frame with a JSON payload.
func EncodeEvent(sequence uint32, message string, timestamp int64) ([]byte, error) {
	data, err := json.Marshal(EventPayload{Message: message, Timestamp: timestamp})
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return Encode(TypeEvent, sequence, data)
}

// EncodeError builds an error frame with a JSON payload.
func EncodeError(sequence uint32, code uint32, message string) ([]byte, error) {
	data, err := json.Marshal(ErrorPayload{Code: code, Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshal error payload: %w", err)
	}
	return Encode(TypeError, sequence, data)
}

// DecodeEventPayload parses the JSON payload of a TypeEvent frame.
func DecodeEventPayload(payload []byte) (EventPayload, error) {
	var p EventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return EventPayload{}, fmt.Errorf("unmarshal event payload: %w", err)
	}
	return p, nil
}

// DecodeErrorPayload parses the JSON payload of a TypeError frame.
func DecodeErrorPayload(payload []byte) (ErrorPayload, error) {
	var p ErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ErrorPayload{}, fmt.Errorf("unmarshal error payload: %w", err)
	}
	return p, nil
}
