package binance

import "testing"

func TestSign(t *testing.T) {
	// Reference vector from the Binance signed-endpoint documentation.
	s := NewSigner("vmPUZE6mv9SD5VNHk4HlWFsOr6aKE2zvsw0MuIgwCIPy6utIco14y7Ju91duEh8A",
		"NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j")

	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"

	if got := s.Sign(query); got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestSignDependsOnSecret(t *testing.T) {
	query := "symbol=BTCUSDT&timestamp=1700000000000"
	a := NewSigner("key", "secret-a").Sign(query)
	b := NewSigner("key", "secret-b").Sign(query)
	if a == b {
		t.Error("different secrets must produce different signatures")
	}
}

func TestAPIKey(t *testing.T) {
	if got := NewSigner("my-key", "my-secret").APIKey(); got != "my-key" {
		t.Errorf("APIKey() = %s, want my-key", got)
	}
}
