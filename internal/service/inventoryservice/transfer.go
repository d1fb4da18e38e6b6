package inventoryservice

import (
	"context"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

// TransferStock move unidades entre LOJA e ARMAZEM numa única transação,
// registrando uma só entrada TRANSFER com origem e destino.
func (s *Service) TransferStock(ctx context.Context, req domain.StockTransferRequest) (domain.StockCounters, error) {
	if req.Quantity <= 0 {
		return domain.StockCounters{}, apperror.NewValidationError("A quantidade deve ser maior que zero.")
	}
	from, err := domain.ParseLocation(req.From)
	if err != nil {
		return domain.StockCounters{}, err
	}
	to, err := domain.ParseLocation(req.To)
	if err != nil {
		return domain.StockCounters{}, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "Transferência " + string(from) + " -> " + string(to)
	}

	return s.apply(ctx, domain.StockMovementInput{
		ProductID:    req.ProductID,
		Type:         domain.MovementTransfer,
		Quantity:     req.Quantity,
		Reason:       reason,
		UserID:       req.UserID,
		FromLocation: from,
		ToLocation:   to,
	})
}
