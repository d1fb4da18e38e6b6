package domain

import (
	"fmt"
	"strings"
	"time"

	apperror "goloja/internal/errors"
)

// MovementType classifica cada entrada do ledger de estoque.
type MovementType string

const (
	MovementEntry      MovementType = "ENTRY"
	MovementExit       MovementType = "EXIT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementSale       MovementType = "SALE"
	MovementReturn     MovementType = "RETURN"
	MovementLoss       MovementType = "LOSS"
	MovementTransfer   MovementType = "TRANSFER"
)

// sign: +1 apenas positivo, -1 apenas negativo, 0 qualquer sinal diferente de zero.
var movementSign = map[MovementType]int{
	MovementEntry:      1,
	MovementReturn:     1,
	MovementTransfer:   1,
	MovementExit:       -1,
	MovementSale:       -1,
	MovementLoss:       -1,
	MovementAdjustment: 0,
}

// Valid informa se o tipo pertence ao enum.
func (t MovementType) Valid() bool {
	_, ok := movementSign[t]
	return ok
}

// StockMovement é uma entrada imutável do ledger.
// Para TRANSFER, Quantity é a quantidade movida (positiva) e Location fica vazio.
type StockMovement struct {
	ID           string       `json:"id"`
	ProductID    string       `json:"product_id"`
	Type         MovementType `json:"type"`
	Quantity     int          `json:"quantity"`
	Reason       string       `json:"reason"`
	Reference    string       `json:"reference,omitempty"`
	UserID       string       `json:"user_id,omitempty"`
	Location     Location     `json:"location,omitempty"`
	FromLocation Location     `json:"from_location,omitempty"`
	ToLocation   Location     `json:"to_location,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// StockMovementInput é o pedido de nova entrada no ledger.
type StockMovementInput struct {
	ProductID    string
	Type         MovementType
	Quantity     int
	Reason       string
	Reference    string
	UserID       string
	Location     Location
	FromLocation Location
	ToLocation   Location
}

// Validate aplica as regras de sinal e de localização por tipo.
func (in StockMovementInput) Validate() error {
	if strings.TrimSpace(in.ProductID) == "" {
		return apperror.NewValidationError("O ID do produto é obrigatório.")
	}
	sign, ok := movementSign[in.Type]
	if !ok {
		return apperror.NewValidationError(fmt.Sprintf("Tipo de movimento desconhecido: '%s'", in.Type))
	}
	if in.Quantity == 0 {
		return apperror.NewValidationError("A quantidade do movimento não pode ser zero.")
	}
	if (sign > 0 && in.Quantity < 0) || (sign < 0 && in.Quantity > 0) {
		return apperror.NewValidationError(fmt.Sprintf("Sinal da quantidade (%d) incompatível com o tipo %s.", in.Quantity, in.Type))
	}
	if strings.TrimSpace(in.Reason) == "" {
		return apperror.NewValidationError("O motivo do movimento é obrigatório.")
	}

	if in.Type == MovementTransfer {
		if !in.FromLocation.Valid() || !in.ToLocation.Valid() {
			return apperror.NewInvalidLocationError("transferência exige origem e destino válidos")
		}
		if in.FromLocation == in.ToLocation {
			return apperror.NewInvalidLocationError(fmt.Sprintf("origem e destino iguais (%s)", in.FromLocation))
		}
		if in.Location != "" {
			return apperror.NewInvalidLocationError("transferência não usa localização única")
		}
		return nil
	}

	if !in.Location.Valid() {
		return apperror.NewInvalidLocationError(fmt.Sprintf("'%s' não é LOJA nem ARMAZEM", in.Location))
	}
	if in.FromLocation != "" || in.ToLocation != "" {
		return apperror.NewInvalidLocationError(fmt.Sprintf("movimento %s não aceita origem/destino", in.Type))
	}
	return nil
}

// MovementPage é uma página do histórico de um produto.
type MovementPage struct {
	Items []StockMovement `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}
