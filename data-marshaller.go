package es

import (
	"fmt"

	"github.com/goccy/go-json"
)

const jsonEncoding = "application/json"

type InvalidEncodingError struct {
	Expected string
	Actual   string
}

func (e *InvalidEncodingError) Error() string {
	return fmt.Sprintf("expected encoding %s, got %s", e.Expected, e.Actual)
}

func InvalidEncoding(expected string, actual string) error {
	return &InvalidEncodingError{
		Expected: expected,
		Actual:   actual,
	}
}

func MarshalToData(value any) (Data, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Data{}, err
	}

	return Data{
		Encoding: jsonEncoding,
		Data:     data,
	}, nil
}

func UnmarshalFromData(data Data, value any) error {
	if data.Encoding != jsonEncoding {
		return InvalidEncoding(jsonEncoding, data.Encoding)
	}
	return json.Unmarshal(data.Data, value)
}

// DecodeEvent unmarshals a recorded event's payload, wrapping failures as
// DeserializationError so replay can report them loudly.
func DecodeEvent(evt *RecordedEvent, value any) error {
	if err := UnmarshalFromData(evt.Data, value); err != nil {
		return DeserializationError{
			EventID:   evt.EventID,
			EventType: evt.EventType,
			Cause:     err,
		}
	}

	return nil
}
