package saleservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/payment"
)

// Checkout cria a venda em uma única transação: valida todos os itens, baixa o estoque
// (entradas SALE) e grava a venda. Para PIX_GATEWAY a cobrança é gerada depois do commit;
// se o gateway falhar, a venda é cancelada com estorno e o erro é devolvido.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (sale domain.Sale, err error) {
	ctx, span := s.tracer.Start(ctx, "saleservice.Checkout")
	defer func() { endSpan(span, err) }()

	// 1. Validação de entrada (antes de qualquer escrita)
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}
	loc, err := domain.ParseLocationOrDefault(req.Location)
	if err != nil {
		return domain.Sale{}, err
	}
	items, err := normalizeItems(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	if req.Discount.IsNegative() || req.DeliveryFee.IsNegative() {
		return domain.Sale{}, apperror.NewValidationError("Desconto e taxa de entrega não podem ser negativos.")
	}

	var gateway payment.Gateway
	if method.RequiresGateway() {
		g, ok := s.gateways.Resolve(req.Gateway)
		if !ok {
			return domain.Sale{}, apperror.NewInvalidPaymentMethodError(fmt.Sprintf("%s (gateway '%s' não configurado)", method, req.Gateway))
		}
		gateway = g
	}

	span.SetAttributes(
		attribute.String("sale.payment_method", string(method)),
		attribute.String("sale.location", string(loc)),
		attribute.Int("sale.items", len(items)),
	)

	// 2. Transação: bloqueio dos produtos em ordem de ID, conferência e baixa
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return domain.Sale{}, apperror.NewDBError("Falha ao iniciar transação", err)
	}
	defer tx.Rollback()

	var lead domain.Lead
	if lead, err = s.resolveLead(ctx, tx, req); err != nil {
		return domain.Sale{}, err
	}

	saleID := uuid.New().String()
	saleItems := make([]domain.SaleItem, 0, len(items))
	for _, it := range items {
		product, err := tx.LockProduct(ctx, it.ProductID)
		if err != nil {
			return domain.Sale{}, translate(err, "Falha interna ao validar itens.")
		}
		if !product.IsActive {
			return domain.Sale{}, apperror.NewValidationError(fmt.Sprintf("Produto %s está inativo.", product.Name))
		}
		if available := product.Counters().At(loc); available < it.Quantity {
			return domain.Sale{}, apperror.NewInsufficientStockError(product.ID, string(loc), available, it.Quantity)
		}
		qty := decimal.NewFromInt(int64(it.Quantity))
		saleItems = append(saleItems, domain.SaleItem{
			ID:        uuid.New().String(),
			SaleID:    saleID,
			ProductID: product.ID,
			Quantity:  it.Quantity,
			UnitPrice: product.Price,
			Total:     product.Price.Mul(qty),
			Location:  loc,
		})
	}

	subtotal, total := domain.ComputeTotals(saleItems, req.Discount, req.DeliveryFee)
	if req.Discount.GreaterThan(subtotal) {
		return domain.Sale{}, apperror.NewValidationError("O desconto não pode ser maior que o subtotal.")
	}

	seq, err := tx.NextSaleNumber(ctx)
	if err != nil {
		return domain.Sale{}, apperror.NewDBError("Falha ao gerar número da venda", err)
	}

	for _, it := range saleItems {
		if _, err := s.ledger.ConsumeForSale(ctx, tx, it.ProductID, it.Quantity, it.Location, saleID, req.UserID); err != nil {
			return domain.Sale{}, translate(err, "Falha interna ao baixar estoque.")
		}
	}

	now := s.now()
	sale = domain.Sale{
		ID:            saleID,
		SaleNumber:    fmt.Sprintf("%s-%06d", s.prefix, seq),
		Status:        method.InitialStatus(),
		Subtotal:      subtotal,
		Discount:      req.Discount,
		DeliveryFee:   req.DeliveryFee,
		Total:         total,
		PaymentMethod: method,
		LeadID:        lead.ID,
		Notes:         strings.TrimSpace(req.Notes),
		UserID:        req.UserID,
		Items:         saleItems,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if gateway != nil {
		sale.Gateway = gateway.Name()
	}
	if err := tx.InsertSale(ctx, sale); err != nil {
		return domain.Sale{}, translate(err, "Falha interna ao gravar venda.")
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Falha ao commitar venda.", err)
		return domain.Sale{}, apperror.NewDBError("Falha ao commitar transação", err)
	}

	productIDs := make([]string, len(saleItems))
	for i, it := range saleItems {
		productIDs[i] = it.ProductID
	}
	s.invalidate(ctx, productIDs...)
	s.salesCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(method))))
	span.SetAttributes(attribute.String("sale.id", sale.ID), attribute.String("sale.number", sale.SaleNumber))

	s.logger.Info("Venda criada com sucesso.", map[string]interface{}{
		"sale_id":        sale.ID,
		"sale_number":    sale.SaleNumber,
		"status":         sale.Status,
		"payment_method": sale.PaymentMethod,
		"total":          sale.Total.StringFixed(2),
		"items":          len(sale.Items),
	})

	// 3. Cobrança no gateway (fora da transação)
	if gateway != nil {
		return s.requestCharge(ctx, sale, lead, gateway)
	}
	return sale, nil
}

// requestCharge gera a cobrança PIX. Em caso de falha, cancela a venda com estorno.
func (s *Service) requestCharge(ctx context.Context, sale domain.Sale, lead domain.Lead, gateway payment.Gateway) (domain.Sale, error) {
	customer := domain.PaymentCustomer{Name: lead.Name, Email: lead.Email, Phone: lead.Phone}
	if customer.Name == "" {
		customer.Name = "Cliente " + sale.SaleNumber
	}

	resp, gwErr := gateway.CreatePixPayment(ctx, domain.PaymentRequest{
		Amount:            sale.Total,
		Description:       "Venda " + sale.SaleNumber,
		Customer:          customer,
		ExternalReference: sale.ID,
		NotificationURL:   s.gateways.NotificationURL(gateway.Name()),
	})
	if gwErr != nil {
		s.logger.Warn("Falha no gateway; cancelando venda e estornando estoque.", map[string]interface{}{
			"sale_id": sale.ID,
			"gateway": gateway.Name(),
			"error":   gwErr.Error(),
		})
		if _, err := s.transition(ctx, sale.ID, domain.SaleStatusCancelled, domain.SaleAction{
			UserID:  sale.UserID,
			IsAdmin: true,
			Reason:  fmt.Sprintf("Falha no gateway %s para a venda %s", gateway.Name(), sale.SaleNumber),
		}); err != nil {
			s.logger.Error("Falha ao compensar venda após erro no gateway.", err)
		}
		var ge *apperror.GatewayError
		if errors.As(gwErr, &ge) {
			return domain.Sale{}, gwErr
		}
		return domain.Sale{}, apperror.NewGatewayError(gateway.Name(), "falha ao criar cobrança", gwErr)
	}

	sale.PaymentReference = resp.ID
	sale.PixCode = resp.PixCode
	sale.QRCodeBase64 = resp.QRCodeBase64
	sale.PaymentURL = resp.PaymentURL
	sale.GatewayResponse = resp.Raw

	if err := s.storePaymentData(ctx, sale); err != nil {
		// A cobrança existe; o webhook ainda encontra a venda pela referência externa (id da venda).
		s.logger.Error("Falha ao gravar dados da cobrança na venda.", err)
	}
	return sale, nil
}

func (s *Service) storePaymentData(ctx context.Context, charged domain.Sale) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sale, err := tx.LockSale(ctx, charged.ID)
	if err != nil {
		return err
	}
	if sale.PaymentReference == "" {
		sale.PaymentReference = charged.PaymentReference
	}
	sale.PixCode = charged.PixCode
	sale.QRCodeBase64 = charged.QRCodeBase64
	sale.PaymentURL = charged.PaymentURL
	if len(sale.GatewayResponse) == 0 {
		sale.GatewayResponse = charged.GatewayResponse
	}
	sale.UpdatedAt = s.now()
	if err := tx.UpdateSale(ctx, sale); err != nil {
		return err
	}
	return tx.Commit()
}

// resolveLead associa a venda a um lead existente ou cria um pelo telefone.
func (s *Service) resolveLead(ctx context.Context, tx domain.Tx, req domain.CheckoutRequest) (domain.Lead, error) {
	if req.LeadID != "" {
		lead, err := tx.FindLead(ctx, req.LeadID)
		if err != nil {
			return domain.Lead{}, translate(err, "Falha interna ao buscar lead.")
		}
		return lead, nil
	}
	phone := strings.TrimSpace(req.LeadPhone)
	if phone == "" {
		return domain.Lead{}, nil
	}
	name := strings.TrimSpace(req.LeadName)
	if name == "" {
		name = phone
	}
	lead, err := tx.FindOrCreateLead(ctx, domain.Lead{Name: name, Phone: phone, Email: strings.TrimSpace(req.LeadEmail)})
	if err != nil {
		return domain.Lead{}, translate(err, "Falha interna ao registrar lead.")
	}
	return lead, nil
}

// normalizeItems valida as linhas, soma produtos repetidos e ordena por ID de produto.
// A ordem fixa de bloqueio evita deadlock entre vendas concorrentes.
func normalizeItems(in []domain.CheckoutItem) ([]domain.CheckoutItem, error) {
	if len(in) == 0 {
		return nil, apperror.NewValidationError("A venda precisa de pelo menos um item.")
	}
	byProduct := make(map[string]int, len(in))
	for i, it := range in {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, apperror.NewValidationError(fmt.Sprintf("Item %d sem produto.", i+1))
		}
		if it.Quantity <= 0 {
			return nil, apperror.NewValidationError(fmt.Sprintf("Item %d: a quantidade deve ser maior que zero.", i+1))
		}
		byProduct[id] += it.Quantity
	}
	out := make([]domain.CheckoutItem, 0, len(byProduct))
	for id, qty := range byProduct {
		out = append(out, domain.CheckoutItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
