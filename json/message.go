package json

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/pulse"
)

// MarshalMessage serializes a single message with its type discriminator.
// The sqlite store shares this format for its per-message payload column.
func MarshalMessage(msg pulse.Message) ([]byte, error) {
	dto, err := marshalMessage(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto)
}

// UnmarshalMessage deserializes a single message produced by MarshalMessage.
func UnmarshalMessage(data []byte) (pulse.Message, error) {
	var dto messageDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return unmarshalMessage(dto)
}

// messageDTO is the JSON representation of a Message with a type
// discriminator. Fields beyond Type, ID and Timestamp are populated per
// kind.
type messageDTO struct {
	Type      string           `json:"type"`
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Text      *string          `json:"text,omitempty"`
	Code      *string          `json:"code,omitempty"`
	Rows      []map[string]any `json:"rows,omitempty"`
	Chart     *chartDTO        `json:"chart,omitempty"`
}

type chartDTO struct {
	Kind   string      `json:"kind"`
	Labels []string    `json:"labels,omitempty"`
	Series []seriesDTO `json:"series,omitempty"`
}

type seriesDTO struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

func marshalMessage(msg pulse.Message) (messageDTO, error) {
	switch m := msg.(type) {
	case pulse.UserMessage:
		return messageDTO{Type: "user", ID: m.ID, Timestamp: m.Timestamp, Text: &m.Text}, nil
	case pulse.StatusMessage:
		return messageDTO{Type: "status", ID: m.ID, Timestamp: m.Timestamp, Text: &m.Text}, nil
	case pulse.TextMessage:
		return messageDTO{Type: "text", ID: m.ID, Timestamp: m.Timestamp, Text: &m.Text}, nil
	case pulse.ErrorMessage:
		return messageDTO{Type: "error", ID: m.ID, Timestamp: m.Timestamp, Text: &m.Text, Code: &m.Code}, nil
	case pulse.TableMessage:
		return messageDTO{Type: "table", ID: m.ID, Timestamp: m.Timestamp, Rows: m.Rows}, nil
	case pulse.ChartMessage:
		return messageDTO{Type: "chart", ID: m.ID, Timestamp: m.Timestamp, Chart: marshalChart(m.Chart)}, nil
	default:
		return messageDTO{}, fmt.Errorf("unknown message type: %T", msg)
	}
}

func unmarshalMessage(dto messageDTO) (pulse.Message, error) {
	text := ""
	if dto.Text != nil {
		text = *dto.Text
	}
	switch dto.Type {
	case "user":
		return pulse.UserMessage{ID: dto.ID, Text: text, Timestamp: dto.Timestamp}, nil
	case "status":
		return pulse.StatusMessage{ID: dto.ID, Text: text, Timestamp: dto.Timestamp}, nil
	case "text":
		return pulse.TextMessage{ID: dto.ID, Text: text, Timestamp: dto.Timestamp}, nil
	case "error":
		code := ""
		if dto.Code != nil {
			code = *dto.Code
		}
		return pulse.ErrorMessage{ID: dto.ID, Code: code, Text: text, Timestamp: dto.Timestamp}, nil
	case "table":
		return pulse.TableMessage{ID: dto.ID, Rows: dto.Rows, Timestamp: dto.Timestamp}, nil
	case "chart":
		return pulse.ChartMessage{ID: dto.ID, Chart: unmarshalChart(dto.Chart), Timestamp: dto.Timestamp}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", dto.Type)
	}
}

func marshalChart(c pulse.ChartData) *chartDTO {
	dto := &chartDTO{Kind: c.Kind, Labels: c.Labels}
	for _, s := range c.Series {
		dto.Series = append(dto.Series, seriesDTO{Label: s.Label, Data: s.Data})
	}
	return dto
}

func unmarshalChart(dto *chartDTO) pulse.ChartData {
	if dto == nil {
		return pulse.ChartData{}
	}
	c := pulse.ChartData{Kind: dto.Kind, Labels: dto.Labels}
	for _, s := range dto.Series {
		c.Series = append(c.Series, pulse.ChartSeries{Label: s.Label, Data: s.Data})
	}
	return c
}
