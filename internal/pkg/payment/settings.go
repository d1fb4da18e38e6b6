package payment

import (
	"fmt"
	"time"

	"goloja/internal/pkg/logger"
)

// Settings são as credenciais lidas do ambiente. Um gateway só é montado quando sua
// credencial principal está presente.
type Settings struct {
	Default         string
	Mock            bool
	NotificationURL string
	Timeout         time.Duration

	MercadoPagoAccessToken string

	AsaasAPIKey  string
	AsaasBaseURL string

	PagarMeSecretKey string
	PagarMeBaseURL   string

	GerenciaNet GerenciaNetOptions
}

// Build instancia os gateways configurados. Com Mock ligado, apenas o mock é montado
// e ele vira o padrão.
func (s Settings) Build(log logger.Logger) (*Config, error) {
	if s.Mock {
		log.Warn("PAYMENT_GATEWAY_MOCK ativo: cobranças PIX não são reais", nil)
		return NewConfig(NameMock, s.NotificationURL, NewMock(log))
	}

	var gateways []Gateway
	if s.MercadoPagoAccessToken != "" {
		mp, err := NewMercadoPago(s.MercadoPagoAccessToken, log)
		if err != nil {
			return nil, fmt.Errorf("mercadopago: %w", err)
		}
		gateways = append(gateways, mp)
	}
	if s.AsaasAPIKey != "" {
		gateways = append(gateways, NewAsaas(s.AsaasAPIKey, s.AsaasBaseURL, s.Timeout, log))
	}
	if s.PagarMeSecretKey != "" {
		gateways = append(gateways, NewPagarMe(s.PagarMeSecretKey, s.PagarMeBaseURL, s.Timeout, log))
	}
	if s.GerenciaNet.ClientID != "" {
		opts := s.GerenciaNet
		if opts.Timeout == 0 {
			opts.Timeout = s.Timeout
		}
		gn, err := NewGerenciaNet(opts, log)
		if err != nil {
			return nil, fmt.Errorf("gerencianet: %w", err)
		}
		gateways = append(gateways, gn)
	}

	defaultName := s.Default
	if defaultName == "" && len(gateways) == 1 {
		defaultName = gateways[0].Name()
	}

	cfg, err := NewConfig(defaultName, s.NotificationURL, gateways...)
	if err != nil {
		return nil, err
	}
	log.Info("Gateways de pagamento configurados", map[string]interface{}{
		"gateways": cfg.Names(),
		"default":  defaultName,
	})
	return cfg, nil
}
