// Package settlementservice aplica webhooks de pagamento às vendas e registra a trilha
// de auditoria de todo webhook recebido (gateways e CRM).
package settlementservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/payment"
	"goloja/internal/service/saleservice"
)

const instrumentationName = "goloja/settlementservice"

const (
	maxSourceLen = 32
	maxEventLen  = 64
)

// Store combina transações de negócio e a trilha de auditoria.
type Store interface {
	domain.TxBeginner
	domain.WebhookLogRepository
}

// SaleTransitioner aplica transições de venda dentro de uma transação existente.
type SaleTransitioner interface {
	TransitionInTx(ctx context.Context, tx domain.Tx, sale domain.Sale, target domain.SaleStatus, action domain.SaleAction) (saleservice.TransitionResult, error)
	AfterCommit(ctx context.Context, res saleservice.TransitionResult)
}

// Service liquida vendas a partir de webhooks.
type Service struct {
	store    Store
	sales    SaleTransitioner
	gateways *payment.Config
	logger   logger.Logger
	now      func() time.Time

	tracer   trace.Tracer
	webhooks metric.Int64Counter
}

// NewService cria o serviço de liquidação.
func NewService(store Store, sales SaleTransitioner, gateways *payment.Config, log logger.Logger) *Service {
	meter := otel.Meter(instrumentationName)
	webhooks, _ := meter.Int64Counter("goloja.webhooks.received", metric.WithDescription("Webhooks recebidos por origem e resultado"))
	return &Service{
		store:    store,
		sales:    sales,
		gateways: gateways,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
		tracer:   otel.Tracer(instrumentationName),
		webhooks: webhooks,
	}
}

// ApplyWebhook grava a auditoria, normaliza o payload e aplica a transição na venda.
//
// O único erro devolvido é a falha ao gravar a auditoria. Webhook sem venda correspondente
// devolve (nil, nil); falhas de normalização ou aplicação ficam registradas no WebhookLog.
func (s *Service) ApplyWebhook(ctx context.Context, gatewayName string, raw []byte) (*domain.SettlementResult, error) {
	ctx, span := s.tracer.Start(ctx, "settlementservice.ApplyWebhook")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.gateway", gatewayName))

	// 1. Auditoria antes de qualquer interpretação
	entry, err := s.audit(ctx, gatewayName, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, outcome, err := s.settle(ctx, gatewayName, raw)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("Webhook registrado mas não aplicado.", map[string]interface{}{
			"webhook_log_id": entry.ID,
			"gateway":        gatewayName,
			"error":          err.Error(),
		})
		s.mark(ctx, entry.ID, false, err.Error())
		s.webhooks.Add(ctx, 1, metric.WithAttributes(attribute.String("source", gatewayName), attribute.String("outcome", outcome)))
		return nil, nil
	}

	s.mark(ctx, entry.ID, true, "")
	s.webhooks.Add(ctx, 1, metric.WithAttributes(attribute.String("source", gatewayName), attribute.String("outcome", outcome)))
	return result, nil
}

// settle faz a normalização e a transição. outcome é usado nas métricas.
func (s *Service) settle(ctx context.Context, gatewayName string, raw []byte) (*domain.SettlementResult, string, error) {
	gw, ok := s.gateways.Get(gatewayName)
	if !ok {
		return nil, "unknown_gateway", fmt.Errorf("gateway '%s' não configurado", gatewayName)
	}

	wh, err := gw.NormalizeWebhook(ctx, raw)
	if err != nil {
		return nil, "invalid_payload", err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, "error", err
	}
	defer tx.Rollback()

	sale, err := tx.LockSaleByPayment(ctx, wh.ExternalReference, wh.ID)
	if err != nil {
		var notFound *apperror.NotFoundError
		if errors.As(err, &notFound) {
			return nil, "unmatched", fmt.Errorf("nenhuma venda para external_reference='%s' payment_id='%s'", wh.ExternalReference, wh.ID)
		}
		return nil, "error", err
	}

	previous := sale.Status
	sale.GatewayResponse = json.RawMessage(raw)
	if sale.PaymentReference == "" {
		sale.PaymentReference = wh.ID
	}
	if sale.Gateway == "" {
		sale.Gateway = gw.Name()
	}
	if !wh.Amount.IsZero() && !wh.Amount.Equal(sale.Total) {
		s.logger.Warn("Valor do webhook difere do total da venda.", map[string]interface{}{
			"sale_id":      sale.ID,
			"sale_total":   sale.Total.StringFixed(2),
			"webhook_amnt": wh.Amount.StringFixed(2),
		})
	}

	var res saleservice.TransitionResult
	target, wants := wh.Status.TargetSaleStatus()
	switch {
	case wants && sale.Status != target && sale.Status.CanTransitionTo(target) && !domain.RequiresAdmin(sale.Status, target):
		res, err = s.sales.TransitionInTx(ctx, tx, sale, target, domain.SaleAction{
			Reason: fmt.Sprintf("Webhook %s: pagamento %s (%s)", gw.Name(), wh.ID, wh.RawStatus),
		})
		if err != nil {
			return nil, "error", err
		}
	default:
		if wants && sale.Status != target {
			s.logger.Warn("Transição pedida por webhook ignorada.", map[string]interface{}{
				"sale_id": sale.ID,
				"status":  sale.Status,
				"target":  target,
			})
		}
		sale.UpdatedAt = s.now()
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return nil, "error", err
		}
		res = saleservice.TransitionResult{Sale: sale, PreviousStatus: previous}
	}

	if err := tx.Commit(); err != nil {
		return nil, "error", err
	}
	s.sales.AfterCommit(ctx, res)

	s.logger.Info("Webhook de pagamento aplicado.", map[string]interface{}{
		"gateway":         gw.Name(),
		"sale_id":         res.Sale.ID,
		"sale_number":     res.Sale.SaleNumber,
		"previous_status": previous,
		"status":          res.Sale.Status,
		"applied":         res.Applied,
		"payment_status":  wh.RawStatus,
	})

	outcome := "noop"
	if res.Applied {
		outcome = "applied"
	}
	return &domain.SettlementResult{
		SaleID:         res.Sale.ID,
		SaleNumber:     res.Sale.SaleNumber,
		PreviousStatus: previous,
		Status:         res.Sale.Status,
		Applied:        res.Applied,
		Webhook:        wh,
	}, outcome, nil
}

// RecordExternalEvent audita um webhook de CRM e registra os leads com telefone.
// Assim como em ApplyWebhook, só a falha da auditoria é propagada.
func (s *Service) RecordExternalEvent(ctx context.Context, source domain.ExternalEventSource, raw []byte) ([]domain.LeadEvent, error) {
	entry, err := s.audit(ctx, source.Name(), raw)
	if err != nil {
		return nil, err
	}

	events, err := source.ParseEvents(ctx, raw)
	if err == nil {
		err = s.upsertLeads(ctx, events)
	}
	if err != nil {
		s.logger.Warn("Evento externo registrado mas não processado.", map[string]interface{}{
			"webhook_log_id": entry.ID,
			"source":         source.Name(),
			"error":          err.Error(),
		})
		s.mark(ctx, entry.ID, false, err.Error())
		return nil, nil
	}

	s.mark(ctx, entry.ID, true, "")
	s.webhooks.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source.Name()), attribute.String("outcome", "recorded")))
	return events, nil
}

func (s *Service) upsertLeads(ctx context.Context, events []domain.LeadEvent) error {
	var withPhone []domain.LeadEvent
	for _, ev := range events {
		if ev.Phone != "" {
			withPhone = append(withPhone, ev)
		}
	}
	if len(withPhone) == 0 {
		return nil
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, ev := range withPhone {
		name := ev.Name
		if name == "" {
			name = ev.Phone
		}
		lead, err := tx.FindOrCreateLead(ctx, domain.Lead{Name: name, Phone: ev.Phone, Email: ev.Email})
		if err != nil {
			return err
		}
		s.logger.Debug("Lead sincronizado a partir de evento externo.", map[string]interface{}{
			"lead_id": lead.ID,
			"source":  ev.Source,
			"event":   ev.Event,
		})
	}
	return tx.Commit()
}

func (s *Service) audit(ctx context.Context, source string, raw []byte) (domain.WebhookLog, error) {
	data := json.RawMessage(raw)
	if !json.Valid(raw) {
		// Payload não-JSON é guardado como string JSON.
		data, _ = json.Marshal(string(raw))
	}
	entry, err := s.store.InsertWebhookLog(ctx, domain.WebhookLog{
		ID:        uuid.New().String(),
		Source:    clip(source, maxSourceLen),
		Event:     clip(payment.ProbeEvent(raw), maxEventLen),
		Data:      data,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("Falha ao gravar auditoria de webhook.", err)
		return domain.WebhookLog{}, err
	}
	return entry, nil
}

// clip corta s em n runas; source e event vêm de fora (URL e payload).
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (s *Service) mark(ctx context.Context, id string, processed bool, errMsg string) {
	if err := s.store.MarkWebhookLog(ctx, id, processed, errMsg); err != nil {
		s.logger.Error("Falha ao atualizar auditoria de webhook.", err)
	}
}
