// Package chatwoot converte webhooks do Chatwoot em eventos de lead.
package chatwoot

import (
	"context"
	"encoding/json"
	"fmt"

	"goloja/internal/domain"
)

// SourceName identifica o Chatwoot na trilha de auditoria.
const SourceName = "chatwoot"

type contact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type payload struct {
	Event string `json:"event"`
	contact
	Labels []string `json:"labels"`
	Meta   struct {
		Sender contact `json:"sender"`
	} `json:"meta"`
	Conversation struct {
		Labels []string `json:"labels"`
		Meta   struct {
			Sender contact `json:"sender"`
		} `json:"meta"`
	} `json:"conversation"`
	Sender contact `json:"sender"`
}

// Source implementa domain.ExternalEventSource.
type Source struct{}

// NewSource cria o normalizador.
func NewSource() *Source { return &Source{} }

func (s *Source) Name() string { return SourceName }

// ParseEvents produz no máximo um evento por webhook. Eventos sem contato identificável
// (ex: mensagens de agente) resultam em lista vazia.
func (s *Source) ParseEvents(ctx context.Context, raw []byte) ([]domain.LeadEvent, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("payload do chatwoot inválido: %w", err)
	}

	var c contact
	var labels []string
	switch p.Event {
	case "contact_created", "contact_updated":
		c = p.contact
	case "conversation_created", "conversation_updated", "conversation_status_changed":
		c = p.Meta.Sender
		labels = p.Labels
	case "message_created":
		c = p.Sender
		if c.ID == 0 {
			c = p.Conversation.Meta.Sender
		}
		labels = p.Conversation.Labels
	default:
		return []domain.LeadEvent{}, nil
	}
	if c.ID == 0 && c.PhoneNumber == "" {
		return []domain.LeadEvent{}, nil
	}

	ev := domain.LeadEvent{
		Source: SourceName,
		Event:  p.Event,
		Name:   c.Name,
		Phone:  c.PhoneNumber,
		Email:  c.Email,
	}
	if c.ID != 0 {
		ev.ExternalID = fmt.Sprintf("%d", c.ID)
	}
	if len(labels) > 0 {
		// A primeira etiqueta é usada como estágio do funil.
		ev.Stage = labels[0]
	}
	return []domain.LeadEvent{ev}, nil
}
