package gateway

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{50000, "500.00"},
		{124006, "1240.06"},
		{-150, "-1.50"},
	}
	for _, c := range cases {
		if got := FormatAmount(c.cents); got != c.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", c.cents, got, c.want)
		}
	}
}

func TestDecodeResultNormalizesCasingAndFieldNames(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Result
	}{
		{"minúsculas com summa", `{"success":true,"summa":"500.00","message":"ok"}`,
			Result{Success: true, AmountCents: 50000, Message: "ok"}},
		{"maiúsculas com Summa", `{"Success":true,"Summa":"1240.06","Message":"done"}`,
			Result{Success: true, AmountCents: 124006, Message: "done"}},
		{"amount numérico", `{"success":true,"amount":10.5}`,
			Result{Success: true, AmountCents: 1050}},
		{"summa prevalece sobre amount", `{"success":true,"summa":"2.00","amount":"9.00"}`,
			Result{Success: true, AmountCents: 200}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := decodeResult([]byte(c.body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != c.want {
				t.Fatalf("got %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestDecodeResultFailureBranches(t *testing.T) {
	// recusa explícita com mensagem no campo error
	_, err := decodeResult([]byte(`{"success":false,"error":"conta bloqueada"}`))
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Msg != "conta bloqueada" {
		t.Fatalf("erro: %v", err)
	}

	// limite de requisições sinalizado no corpo, não no status HTTP
	_, err = decodeResult([]byte(`{"success":false,"message":"Too many requests, slow down"}`))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("esperava rate limit, veio %v", err)
	}

	// idem via código numérico da plataforma
	_, err = decodeResult([]byte(`{"success":false,"code":429}`))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("esperava rate limit por código, veio %v", err)
	}

	// corpo ilegível numa resposta 2xx é recusa, não desfecho desconhecido
	_, err = decodeResult([]byte(`<html>maintenance</html>`))
	if !errors.As(err, &rej) {
		t.Fatalf("corpo ilegível: %v", err)
	}
}

func TestLooksRateLimited(t *testing.T) {
	if !looksRateLimited(429, "") {
		t.Fatal("429 deveria ser rate limit")
	}
	if !looksRateLimited(200, "Rate Limit exceeded") {
		t.Fatal("padrão no corpo deveria ser rate limit")
	}
	if looksRateLimited(400, "saldo insuficiente") {
		t.Fatal("recusa comum não é rate limit")
	}
}

func TestNumberToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"10.01", 1001},
		{"0.1", 10},
		{"-1.50", -150},
		{"1240.06", 124006},
		{"", 0},
	}
	for _, c := range cases {
		if got := numberToCents(json.Number(c.in)); got != c.want {
			t.Errorf("numberToCents(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
