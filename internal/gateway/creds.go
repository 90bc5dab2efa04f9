package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

// Credentials reúne o material secreto por plataforma. Configuração imutável,
// resolvida a cada chamada e nunca logada por inteiro.
type Credentials struct {
	Platform string
	BaseURL  string

	// Família cashdesk
	CashdeskID  string
	CashierPass string
	SharedHash  string
	BasicUser   string
	BasicPass   string

	// Famílias api-key / sessão assinada
	APIKey    string
	SecretKey string

	// Família login de sessão
	Login    string
	Password string
}

// Resolver busca credenciais na tabela gateway_credentials com fallback em
// variáveis de ambiente (GATEWAY_<PLATAFORMA>_<CAMPO>). DB nil usa só ambiente.
type Resolver struct{ db *sql.DB }

func NewResolver(db *sql.DB) *Resolver { return &Resolver{db: db} }

func (r *Resolver) Resolve(ctx context.Context, platform string) (Credentials, error) {
	c := Credentials{Platform: platform}

	if r.db != nil {
		err := r.db.QueryRowContext(ctx, `
			SELECT COALESCE(base_url,''), COALESCE(cashdesk_id,''), COALESCE(cashier_pass,''),
			       COALESCE(shared_hash,''), COALESCE(basic_user,''), COALESCE(basic_pass,''),
			       COALESCE(api_key,''), COALESCE(secret_key,''), COALESCE(login,''), COALESCE(password,'')
			FROM gateway_credentials WHERE platform=$1`, platform).
			Scan(&c.BaseURL, &c.CashdeskID, &c.CashierPass, &c.SharedHash, &c.BasicUser, &c.BasicPass,
				&c.APIKey, &c.SecretKey, &c.Login, &c.Password)
		if err != nil && err != sql.ErrNoRows {
			return Credentials{}, fmt.Errorf("resolve credentials %s: %w", platform, err)
		}
	}

	// Fallback por ambiente campo a campo
	prefix := "GATEWAY_" + strings.ToUpper(platform) + "_"
	fill := func(dst *string, field string) {
		if *dst == "" {
			*dst = os.Getenv(prefix + field)
		}
	}
	fill(&c.BaseURL, "BASE_URL")
	fill(&c.CashdeskID, "CASHDESK_ID")
	fill(&c.CashierPass, "CASHIER_PASS")
	fill(&c.SharedHash, "SHARED_HASH")
	fill(&c.BasicUser, "BASIC_USER")
	fill(&c.BasicPass, "BASIC_PASS")
	fill(&c.APIKey, "API_KEY")
	fill(&c.SecretKey, "SECRET_KEY")
	fill(&c.Login, "LOGIN")
	fill(&c.Password, "PASSWORD")

	if c.BaseURL == "" {
		return Credentials{}, &ConfigError{Platform: platform, Field: "base_url"}
	}
	return c, nil
}

// require valida os campos obrigatórios da família antes de qualquer chamada
func (c Credentials) require(fields map[string]string) error {
	for name, v := range fields {
		if v == "" {
			return &ConfigError{Platform: c.Platform, Field: name}
		}
	}
	return nil
}
