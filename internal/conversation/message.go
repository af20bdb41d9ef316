package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
)

// Sender is who wrote a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
	SenderAI     Sender = "ai"
)

// Message is an entry of the transcript. Seq orders a session's messages.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Payload   Payload   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON includes the payload with its type discriminator.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	payload, err := MarshalPayload(m.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		plain
		Payload json.RawMessage `json:"payload,omitempty"`
	}{plain: plain(m), Payload: payload})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var aux struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.plain)
	if len(aux.Payload) > 0 {
		p, err := UnmarshalPayload(aux.Payload)
		if err != nil {
			return err
		}
		m.Payload = p
	}
	return nil
}

// PayloadKind is the wire discriminator of a Payload.
type PayloadKind string

const (
	PayloadEquipmentChoiceList PayloadKind = "equipment_choice_list"
	PayloadEquipmentFormPrompt PayloadKind = "equipment_form_prompt"
	PayloadConfirmationRequest PayloadKind = "confirmation_request"
	PayloadSolutionList        PayloadKind = "solution_list"
	PayloadOpenIssueList       PayloadKind = "open_issue_list"
)

// ErrUnknownPayload is returned when decoding an unrecognized payload type.
var ErrUnknownPayload = errors.New("unknown payload type")

// Payload is structured data attached to a system message.
type Payload interface {
	PayloadKind() PayloadKind
	payload()
}

// EquipmentChoiceList asks the user to pick a device.
type EquipmentChoiceList struct {
	Options []EquipmentOption `json:"options"`
}

// EquipmentFormPrompt asks for manual equipment entry.
type EquipmentFormPrompt struct {
	Fields []string `json:"fields"`
}

// ConfirmationRequest asks the user to confirm a rewritten description.
type ConfirmationRequest struct {
	Text string `json:"text"`
}

// SolutionList shows the candidate being tested and the rest of the list.
type SolutionList struct {
	Stage   diagnosis.Stage       `json:"stage,omitempty"`
	Source  diagnosis.Source      `json:"source"`
	Current int                   `json:"current"`
	Items   []diagnosis.Candidate `json:"items"`
}

// OpenIssueList shows unresolved issues for the equipment.
type OpenIssueList struct {
	Issues []OpenIssue `json:"issues"`
}

func (EquipmentChoiceList) PayloadKind() PayloadKind { return PayloadEquipmentChoiceList }
func (EquipmentFormPrompt) PayloadKind() PayloadKind { return PayloadEquipmentFormPrompt }
func (ConfirmationRequest) PayloadKind() PayloadKind { return PayloadConfirmationRequest }
func (SolutionList) PayloadKind() PayloadKind        { return PayloadSolutionList }
func (OpenIssueList) PayloadKind() PayloadKind       { return PayloadOpenIssueList }

func (EquipmentChoiceList) payload() {}
func (EquipmentFormPrompt) payload() {}
func (ConfirmationRequest) payload() {}
func (SolutionList) payload()        {}
func (OpenIssueList) payload()       {}

// MarshalPayload encodes p with a "type" field. A nil payload encodes to nil.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(p.PayloadKind())
	return json.Marshal(fields)
}

// UnmarshalPayload decodes a value written by MarshalPayload.
func UnmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var head struct {
		Type PayloadKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode payload type: %w", err)
	}

	var p Payload
	var err error
	switch head.Type {
	case PayloadEquipmentChoiceList:
		var v EquipmentChoiceList
		err = json.Unmarshal(data, &v)
		p = v
	case PayloadEquipmentFormPrompt:
		var v EquipmentFormPrompt
		err = json.Unmarshal(data, &v)
		p = v
	case PayloadConfirmationRequest:
		var v ConfirmationRequest
		err = json.Unmarshal(data, &v)
		p = v
	case PayloadSolutionList:
		var v SolutionList
		err = json.Unmarshal(data, &v)
		p = v
	case PayloadOpenIssueList:
		var v OpenIssueList
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, head.Type)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
