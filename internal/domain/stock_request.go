package domain

// StockOperationRequest é o payload de entrada/saída/perda em uma localização.
// Location vazia equivale a LOJA.
type StockOperationRequest struct {
	ProductID string `json:"-"`
	Quantity  int    `json:"quantity"`
	Location  string `json:"location,omitempty"`
	Reason    string `json:"reason"`
	UserID    string `json:"-"`
}

// StockAdjustmentRequest é o payload de ajuste de inventário (delta com sinal).
type StockAdjustmentRequest struct {
	ProductID string `json:"-"`
	Delta     int    `json:"delta"`
	Location  string `json:"location,omitempty"`
	Reason    string `json:"reason"`
	UserID    string `json:"-"`
}

// StockTransferRequest é o payload de transferência entre LOJA e ARMAZEM.
type StockTransferRequest struct {
	ProductID string `json:"-"`
	Quantity  int    `json:"quantity"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
	UserID    string `json:"-"`
}
