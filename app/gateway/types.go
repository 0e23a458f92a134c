package gateway

// BalanceEntry is one token balance inside a payment's nested balance map.
// Balance is the human-denominated decimal string, TokenBalance the raw
// token units.
type BalanceEntry struct {
	Balance       string `json:"balance"`
	TokenBalance  string `json:"token_balance"`
	TokenDecimals int32  `json:"token_decimals"`
	BlockNum      string `json:"blockNum"`
}

type Address struct {
	Addr string `json:"addr"`
}

// Payment is the gateway-side record for an order. The maps are keyed
// network -> chain (-> token address for balances).
type Payment struct {
	ID        string                                   `json:"id"`
	Addresses map[string]map[string]Address            `json:"addresses"`
	Balances  map[string]map[string]map[string]BalanceEntry `json:"balances"`
	CreatedAt int64                                    `json:"createdAt"`
	UpdatedAt int64                                    `json:"updatedAt"`
}

type PaymentPage struct {
	Results   []Payment `json:"results"`
	NextToken string    `json:"next_token"`
}

// Operation statuses as reported by the gateway. An operation stays "pending"
// until the underlying transaction confirms or fails.
const (
	OperationStatusPending = "pending"
	OperationStatusSuccess = "yes"
	OperationStatusFailed  = "no"
)

// Refund operation function names that count towards complete-refund
// verification.
const (
	FuncCreateAndRefundWallet = "createAndRefundWallet"
	FuncRefundWallet          = "refundWallet"
)

type OperationInputs struct {
	Token string `json:"token"`
}

// Operation is one asynchronous gateway transaction (settle or refund),
// polled by txid until its status resolves.
type Operation struct {
	TxID     string          `json:"txid"`
	Status   string          `json:"status"`
	Hash     string          `json:"hash"`
	Chain    string          `json:"chain"`
	FuncName string          `json:"func_name"`
	Inputs   OperationInputs `json:"inputs"`
}

type OperationPage struct {
	Results   []Operation `json:"results"`
	NextToken string      `json:"next_token"`
}

type Token struct {
	Currency string `json:"currency"`
	Network  string `json:"network"`
	Chain    string `json:"chain"`
	Addr     string `json:"addr"`
}

type CreateCheckoutURLInput struct {
	ID         string `json:"id"`
	Currency   string `json:"currency"`
	Amount     string `json:"amount"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
	// Base64Transform asks the gateway to base64-encode the hmac input on
	// the redirect so it survives URL encoding.
	Base64Transform bool `json:"base64Transform"`
}

type CheckoutURL struct {
	URL string `json:"url"`
}

type ValidateCheckoutInput struct {
	HmacAlg   string `json:"hmacAlg"`
	HmacInput string `json:"hmacInput"`
	HmacKeyID string `json:"hmacKeyId"`
	HmacValue string `json:"hmacValue"`
}

// CheckoutValidation carries the gateway's verdict plus the decoded
// pipe-separated fields of the signed input.
type CheckoutValidation struct {
	Valid       bool
	InputFields []string
}
