package domain

import (
	"context"
	"encoding/json"
	"time"
)

// WebhookLog é o registro de auditoria de todo webhook recebido. Nunca altera estado de negócio.
type WebhookLog struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data"`
	Processed   bool            `json:"processed"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// LeadEvent é o comando normalizado produzido por uma fonte externa de CRM.
type LeadEvent struct {
	Source     string `json:"source"`
	Event      string `json:"event"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Stage      string `json:"stage,omitempty"`
}

// ExternalEventSource converte o payload bruto de um CRM (ex: Chatwoot) em eventos de lead.
type ExternalEventSource interface {
	Name() string
	ParseEvents(ctx context.Context, payload []byte) ([]LeadEvent, error)
}
