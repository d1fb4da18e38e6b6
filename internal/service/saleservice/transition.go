package saleservice

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/service/inventoryservice"
)

// TransitionResult descreve o efeito de uma transição aplicada dentro de uma transação.
type TransitionResult struct {
	Sale           domain.Sale
	PreviousStatus domain.SaleStatus
	Applied        bool
	Returned       []domain.StockBalance
}

// TransitionInTx aplica a transição na transação do chamador. A venda deve ter sido
// obtida com LockSale/LockSaleByPayment na mesma transação.
//
// Transição para o mesmo status é no-op (Applied=false). Sair de PENDING/PAID para
// CANCELLED/REFUNDED devolve ao estoque apenas o consumo ainda pendente no ledger.
func (s *Service) TransitionInTx(ctx context.Context, tx domain.Tx, sale domain.Sale, target domain.SaleStatus, action domain.SaleAction) (TransitionResult, error) {
	res := TransitionResult{Sale: sale, PreviousStatus: sale.Status}
	if sale.Status == target {
		return res, nil
	}
	if !sale.Status.CanTransitionTo(target) {
		return res, apperror.NewInvalidStateTransitionError(string(sale.Status), string(target))
	}
	if domain.RequiresAdmin(sale.Status, target) && !action.IsAdmin {
		return res, apperror.NewForbiddenError(fmt.Sprintf("Somente administradores podem mudar uma venda %s para %s.", sale.Status, target))
	}

	if sale.Status.HoldsStock() && !target.HoldsStock() {
		reason := action.Reason
		if reason == "" {
			reason = fmt.Sprintf("Estorno da venda %s (%s)", sale.SaleNumber, target)
		}
		returned, err := s.ledger.ReverseSale(ctx, tx, sale.ID, action.UserID, reason)
		if err != nil {
			return res, translate(err, "Falha interna ao estornar estoque.")
		}
		res.Returned = returned
	}

	sale.Status = target
	sale.UpdatedAt = s.now()
	if err := tx.UpdateSale(ctx, sale); err != nil {
		return res, translate(err, "Falha interna ao atualizar venda.")
	}
	res.Sale = sale
	res.Applied = true
	return res, nil
}

// AfterCommit publica os efeitos de uma transição já commitada (cache e métricas).
func (s *Service) AfterCommit(ctx context.Context, res TransitionResult) {
	if len(res.Returned) == 0 {
		return
	}
	ids := make([]string, 0, len(res.Returned))
	units := 0
	for _, b := range res.Returned {
		ids = append(ids, b.ProductID)
		units += b.Quantity
	}
	s.invalidate(ctx, ids...)
	s.stockReversed.Add(ctx, int64(units), metric.WithAttributes(attribute.String("status", string(res.Sale.Status))))
}

// Cancel leva a venda para CANCELLED com estorno. Venda PAID exige administrador.
func (s *Service) Cancel(ctx context.Context, id string, action domain.SaleAction) (domain.Sale, error) {
	return s.transition(ctx, id, domain.SaleStatusCancelled, action)
}

// Refund leva uma venda PAID para REFUNDED com estorno (somente administrador).
func (s *Service) Refund(ctx context.Context, id string, action domain.SaleAction) (domain.Sale, error) {
	return s.transition(ctx, id, domain.SaleStatusRefunded, action)
}

// transition executa uma ação explícita de usuário: repetir o status atual é erro.
func (s *Service) transition(ctx context.Context, id string, target domain.SaleStatus, action domain.SaleAction) (sale domain.Sale, err error) {
	ctx, span := s.tracer.Start(ctx, "saleservice.Transition")
	span.SetAttributes(attribute.String("sale.id", id), attribute.String("sale.target_status", string(target)))
	defer func() { endSpan(span, err) }()

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return domain.Sale{}, apperror.NewDBError("Falha ao iniciar transação", err)
	}
	defer tx.Rollback()

	current, err := tx.LockSale(ctx, id)
	if err != nil {
		return domain.Sale{}, translate(err, "Falha interna ao buscar venda.")
	}
	if current.Status == target {
		return domain.Sale{}, apperror.NewInvalidStateTransitionError(string(current.Status), string(target))
	}

	res, err := s.TransitionInTx(ctx, tx, current, target, action)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("Falha ao commitar mudança de status da venda.", err)
		return domain.Sale{}, apperror.NewDBError("Falha ao commitar transação", err)
	}
	s.AfterCommit(ctx, res)

	s.logger.Info("Status da venda alterado.", map[string]interface{}{
		"sale_id":         res.Sale.ID,
		"sale_number":     res.Sale.SaleNumber,
		"previous_status": res.PreviousStatus,
		"status":          res.Sale.Status,
		"returned_lines":  len(res.Returned),
		"user_id":         action.UserID,
	})
	return res.Sale, nil
}

// DeleteSale remove a venda (somente administrador). De PENDING/PAID o estoque é estornado
// antes da remoção. De CANCELLED/REFUNDED não há segundo estorno; se o ledger ainda mostrar
// consumo pendente a remoção é recusada, a menos que force=true, que estorna o saldo antes.
func (s *Service) DeleteSale(ctx context.Context, id string, action domain.SaleAction) (err error) {
	ctx, span := s.tracer.Start(ctx, "saleservice.DeleteSale")
	span.SetAttributes(attribute.String("sale.id", id), attribute.Bool("sale.force", action.Force))
	defer func() { endSpan(span, err) }()

	if !action.IsAdmin {
		return apperror.NewForbiddenError("Somente administradores podem excluir vendas.")
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return apperror.NewDBError("Falha ao iniciar transação", err)
	}
	defer tx.Rollback()

	sale, err := tx.LockSale(ctx, id)
	if err != nil {
		return translate(err, "Falha interna ao buscar venda.")
	}

	reason := action.Reason
	if reason == "" {
		reason = fmt.Sprintf("Exclusão da venda %s", sale.SaleNumber)
	}

	res := TransitionResult{Sale: sale, PreviousStatus: sale.Status}
	if sale.Status.HoldsStock() {
		if res.Returned, err = s.ledger.ReverseSale(ctx, tx, sale.ID, action.UserID, reason); err != nil {
			return translate(err, "Falha interna ao estornar estoque.")
		}
	} else {
		outstanding, err := inventoryservice.OutstandingConsumption(ctx, tx, sale.ID)
		if err != nil {
			return translate(err, "Falha interna ao consultar ledger.")
		}
		if len(outstanding) > 0 {
			if !action.Force {
				return apperror.NewConflictError(fmt.Sprintf("A venda %s ainda tem consumo de estoque não estornado. Use force=true para estornar e excluir.", sale.SaleNumber))
			}
			if res.Returned, err = s.ledger.ReverseSale(ctx, tx, sale.ID, action.UserID, reason); err != nil {
				return translate(err, "Falha interna ao estornar estoque.")
			}
		}
	}

	if err := tx.DeleteSale(ctx, sale.ID); err != nil {
		return translate(err, "Falha interna ao excluir venda.")
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("Falha ao commitar exclusão de venda.", err)
		return apperror.NewDBError("Falha ao commitar transação", err)
	}
	s.AfterCommit(ctx, res)

	s.logger.Info("Venda excluída.", map[string]interface{}{
		"sale_id":        sale.ID,
		"sale_number":    sale.SaleNumber,
		"status":         sale.Status,
		"returned_lines": len(res.Returned),
		"user_id":        action.UserID,
	})
	return nil
}
