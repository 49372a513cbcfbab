package model

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// ChainParams is the registration payload sent with wallet_addEthereumChain.
type ChainParams struct {
	ChainID           string         `json:"chainId" yaml:"chain_id"`
	ChainName         string         `json:"chainName" yaml:"chain_name"`
	RPCURLs           []string       `json:"rpcUrls" yaml:"rpc_urls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency" yaml:"native_currency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls" yaml:"block_explorer_urls"`
}

// SameChain compares two hex chain ids ignoring case and leading zeros, so
// "0x13881" and "0x013881" are the same network.
func SameChain(a, b string) bool {
	x, errA := hexutil.DecodeBig(normalizeHex(a))
	y, errB := hexutil.DecodeBig(normalizeHex(b))
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return x.Cmp(y) == 0
}

// ChainIDHex renders a numeric chain id the way wallets report it.
func ChainIDHex(id *big.Int) string {
	return hexutil.EncodeBig(id)
}

func normalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		return s
	}
	digits := strings.TrimLeft(s[2:], "0")
	if digits == "" {
		digits = "0"
	}
	return "0x" + digits
}
