package gateway

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

// Cashdesk implementa a família de assinatura com hash duplo: quatro
// plataformas compartilham o mesmo protocolo com duas variações fixas por
// identidade de plataforma (ref minúsculo e HTTP basic auth).
type Cashdesk struct {
	Platform string
	Creds    Credentials
	HTTP     *http.Client
}

func NewCashdesk(platform string, creds Credentials, client *http.Client) (*Cashdesk, error) {
	err := creds.require(map[string]string{
		"cashdesk_id":  creds.CashdeskID,
		"cashier_pass": creds.CashierPass,
		"shared_hash":  creds.SharedHash,
	})
	if err != nil {
		return nil, err
	}
	if needsBasicAuth(platform) {
		if err := creds.require(map[string]string{
			"basic_user": creds.BasicUser,
			"basic_pass": creds.BasicPass,
		}); err != nil {
			return nil, err
		}
	}
	return &Cashdesk{Platform: platform, Creds: creds, HTTP: client}, nil
}

// lowercaseRef: essas plataformas validam o token de confirmação com o login
// em minúsculas; as demais usam o ref exatamente como cadastrado
func lowercaseRef(platform string) bool {
	return platform == PlatformMaxline || platform == PlatformRubet
}

func needsBasicAuth(platform string) bool {
	return platform == PlatformGrandbet || platform == PlatformRubet
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sha256hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// confirmToken reproduz o token de confirmação: md5(ref + ":" + hash)
func (c *Cashdesk) confirmToken(accountRef string) string {
	ref := accountRef
	if lowercaseRef(c.Platform) {
		ref = strings.ToLower(ref)
	}
	return md5hex(ref + ":" + c.Creds.SharedHash)
}

// sign reproduz a assinatura da requisição: sha256 sobre a concatenação de
// dois md5 (bloco de identidade + bloco da operação). A ordem e a grafia dos
// parâmetros são parte do protocolo e não podem mudar.
func (c *Cashdesk) sign(accountRef, opBlock string) string {
	inner1 := md5hex("hash=" + c.Creds.SharedHash + "&lng=ru&userid=" + accountRef)
	inner2 := md5hex(opBlock + "&cashierpass=" + c.Creds.CashierPass + "&cashdeskid=" + c.Creds.CashdeskID)
	return sha256hex(inner1 + inner2)
}

func (c *Cashdesk) post(ctx context.Context, path, accountRef, signature string, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &RejectedError{Msg: "payload: " + err.Error()}
	}
	req, err := newJSONRequest(ctx, http.MethodPost, c.Creds.BaseURL+path, body)
	if err != nil {
		return Result{}, &RejectedError{Msg: err.Error()}
	}
	req.Header.Set("sign", signature)
	if needsBasicAuth(c.Platform) {
		req.SetBasicAuth(c.Creds.BasicUser, c.Creds.BasicPass)
	}

	raw, _, err := doJSON(c.HTTP, req)
	if err != nil {
		return Result{}, err
	}
	return decodeResult(raw)
}

func (c *Cashdesk) Deposit(ctx context.Context, accountRef string, amountCents int64) (Result, error) {
	amount := FormatAmount(amountCents)
	sig := c.sign(accountRef, "summa="+amount)
	payload := map[string]any{
		"cashdeskId": c.Creds.CashdeskID,
		"lng":        "ru",
		"summa":      amount,
		"confirm":    c.confirmToken(accountRef),
	}
	return c.post(ctx, "/Deposit/"+accountRef, accountRef, sig, payload)
}

// VerifyAndExecute valida o código de saque; nesta família a validação JÁ
// executa o pagamento na plataforma — chamada única e irreversível.
func (c *Cashdesk) VerifyAndExecute(ctx context.Context, accountRef, code string) (Result, error) {
	sig := c.sign(accountRef, "code="+code)
	payload := map[string]any{
		"cashdeskId": c.Creds.CashdeskID,
		"lng":        "ru",
		"code":       code,
		"confirm":    c.confirmToken(accountRef),
	}
	return c.post(ctx, "/Payout/"+accountRef, accountRef, sig, payload)
}
