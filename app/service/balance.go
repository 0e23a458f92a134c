package service

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
)

// Networks and chains the gateway settles on. A payer can send tokens on
// any of these, so multi-token detection scans all of them, not just the
// chains matching the store currency.
var supportedChains = map[string][]string{
	"ethereum": {"mainnet", "goerli", "xdai_testnet", "xdai"},
	"algorand": {"alg_mainnet", "alg_testnet"},
	"rsk":      {"rsk", "rsk_testnet"},
}

const algorandNativeToken = "ALGO"

// TokenBalance is one positive balance held by a payment, derived per
// reconciliation pass and never persisted.
type TokenBalance struct {
	Network       string
	Chain         string
	Addr          string
	Balance       decimal.Decimal
	TokenBalance  string
	TokenDecimals int32
	BlockNum      string
}

// ResolveBalance fetches (or reuses) the payment for the order and returns
// its positive token balances matching the order currency. It returns
// ErrPaymentNotFound when the gateway has no payment for the order and
// ErrMultiTokenPayment when more than one balance remains after native-ALGO
// suppression: the payer split funds across tokens and a human has to sort
// it out.
func (s *ReconcileService) ResolveBalance(ctx context.Context, order *entity.Order, payment *gateway.Payment) ([]TokenBalance, error) {
	balances, err := s.resolveBalances(ctx, order, payment)
	if err != nil {
		return nil, err
	}
	if len(balances) > 1 {
		return nil, ErrMultiTokenPayment
	}
	return balances, nil
}

// resolveBalances is ResolveBalance without the ambiguity error, used by
// complete-refund verification which must see every remaining balance.
func (s *ReconcileService) resolveBalances(ctx context.Context, order *entity.Order, payment *gateway.Payment) ([]TokenBalance, error) {
	if payment == nil {
		fetched, err := s.gw.GetPayment(ctx, strconv.FormatUint(order.ID, 10))
		if err != nil {
			return nil, err
		}
		if fetched == nil {
			return nil, ErrPaymentNotFound
		}
		payment = fetched
	}

	// A payment made in a token the store currency does not map to would be
	// invisible to the currency-filtered pass below, so ambiguity is
	// checked against every supported chain first.
	if multi := suppressNativeALGO(scanAllBalances(payment)); len(multi) > 1 {
		return multi, nil
	}

	tokens, err := s.gw.ListTokens(ctx, order.Currency)
	if err != nil {
		return nil, err
	}

	balances := make([]TokenBalance, 0, 1)
	for _, token := range tokens {
		entry, ok := lookupBalance(payment, token.Network, token.Chain, token.Addr)
		if !ok {
			continue
		}
		balance, err := decimal.NewFromString(entry.Balance)
		if err != nil || !balance.IsPositive() {
			continue
		}
		balances = append(balances, TokenBalance{
			Network:       token.Network,
			Chain:         token.Chain,
			Addr:          token.Addr,
			Balance:       balance,
			TokenBalance:  entry.TokenBalance,
			TokenDecimals: entry.TokenDecimals,
			BlockNum:      entry.BlockNum,
		})
	}

	return suppressNativeALGO(balances), nil
}

// lookupBalance walks the nested balance map and reports absence instead of
// faulting on missing keys.
func lookupBalance(payment *gateway.Payment, network, chain, addr string) (gateway.BalanceEntry, bool) {
	chains, ok := payment.Balances[network]
	if !ok {
		return gateway.BalanceEntry{}, false
	}
	addrs, ok := chains[chain]
	if !ok {
		return gateway.BalanceEntry{}, false
	}
	entry, ok := addrs[addr]
	return entry, ok
}

func scanAllBalances(payment *gateway.Payment) []TokenBalance {
	balances := make([]TokenBalance, 0, 1)
	for network, chains := range supportedChains {
		for _, chain := range chains {
			addrs, ok := payment.Balances[network]
			if !ok {
				continue
			}
			entries, ok := addrs[chain]
			if !ok {
				continue
			}
			for addr, entry := range entries {
				balance, err := decimal.NewFromString(entry.Balance)
				if err != nil || !balance.IsPositive() {
					continue
				}
				balances = append(balances, TokenBalance{
					Network:       network,
					Chain:         chain,
					Addr:          addr,
					Balance:       balance,
					TokenBalance:  entry.TokenBalance,
					TokenDecimals: entry.TokenDecimals,
					BlockNum:      entry.BlockNum,
				})
			}
		}
	}
	return balances
}

// suppressNativeALGO drops the native ALGO balance when any Algorand ASA
// balance is present: the ASA payment is authoritative and leftover native
// ALGO is gas dust.
func suppressNativeALGO(balances []TokenBalance) []TokenBalance {
	asaFound := false
	for _, item := range balances {
		if item.Network == "algorand" && item.Addr != algorandNativeToken {
			asaFound = true
		}
	}

	result := make([]TokenBalance, 0, len(balances))
	for _, item := range balances {
		if item.Network == "algorand" && asaFound && item.Addr == algorandNativeToken {
			continue
		}
		result = append(result, item)
	}
	return result
}
