package session

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

func toRecord(s conversation.Session) (*store.SessionRecord, error) {
	ctx, err := json.Marshal(s.Context)
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}
	history := make([]string, len(s.History))
	for i, step := range s.History {
		history[i] = string(step)
	}
	return &store.SessionRecord{
		ID:           s.ID,
		TenantID:     s.TenantID,
		UserID:       s.UserID,
		EquipmentID:  s.EquipmentID,
		Step:         string(s.Step),
		History:      history,
		Context:      ctx,
		Language:     s.Language,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}, nil
}

func fromRecord(rec *store.SessionRecord) (conversation.Session, error) {
	s := conversation.Session{
		ID:           rec.ID,
		TenantID:     rec.TenantID,
		UserID:       rec.UserID,
		EquipmentID:  rec.EquipmentID,
		Step:         conversation.Step(rec.Step),
		Language:     rec.Language,
		MessageCount: rec.MessageCount,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	s.History = make([]conversation.Step, len(rec.History))
	for i, step := range rec.History {
		s.History[i] = conversation.Step(step)
	}
	if len(rec.Context) > 0 {
		if err := json.Unmarshal(rec.Context, &s.Context); err != nil {
			return conversation.Session{}, fmt.Errorf("decode context: %w", err)
		}
	}
	if !s.Step.Valid() {
		return conversation.Session{}, fmt.Errorf("session %s has unknown step %q", rec.ID, rec.Step)
	}
	return s, nil
}

func toMessageRecord(m conversation.Message) (store.MessageRecord, error) {
	payload, err := conversation.MarshalPayload(m.Payload)
	if err != nil {
		return store.MessageRecord{}, fmt.Errorf("encode payload: %w", err)
	}
	return store.MessageRecord{
		ID:        m.ID,
		SessionID: m.SessionID,
		Seq:       m.Seq,
		Sender:    string(m.Sender),
		Text:      m.Text,
		Payload:   payload,
		CreatedAt: m.CreatedAt,
	}, nil
}

func fromMessageRecord(rec store.MessageRecord) (conversation.Message, error) {
	payload, err := conversation.UnmarshalPayload(rec.Payload)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("message %s: %w", rec.ID, err)
	}
	return conversation.Message{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Seq:       rec.Seq,
		Sender:    conversation.Sender(rec.Sender),
		Text:      rec.Text,
		Payload:   payload,
		CreatedAt: rec.CreatedAt,
	}, nil
}
