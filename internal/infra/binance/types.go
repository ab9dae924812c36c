package binance

import "strings"

// REST response shapes (string-typed numbers, per Binance convention)

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type accountResponse struct {
	Balances []accountBalance `json:"balances"`
}

type accountBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type orderResponse struct {
	Symbol        string      `json:"symbol"`
	OrderID       int64       `json:"orderId"`
	ClientOrderID string      `json:"clientOrderId"`
	Status        string      `json:"status"`
	OrigQty       string      `json:"origQty"`
	ExecutedQty   string      `json:"executedQty"`
	Fills         []orderFill `json:"fills"`
}

type orderFill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

type apiError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

// Combined-stream payloads

type streamEnvelope struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

type miniTicker struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

// exchangeSymbol converts a configured pair ("BTC/USDT") to the
// exchange's compact form ("BTCUSDT").
func exchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}
