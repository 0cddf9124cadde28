package escrow

import (
	"math/big"
	"strings"

	"letspay/internal/faults"

	"github.com/ethereum/go-ethereum/params"
)

var weiPerToken = big.NewInt(params.Ether)

// ParseAmount converts a whole-token decimal string into a smallest-unit
// integer. Rejects empty, malformed, non-positive input and more than 18
// fractional digits. No floating point is ever constructed.
func ParseAmount(text string) (*big.Int, error) {
	s := strings.TrimSpace(text)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, faults.InvalidAmount(text)
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if intPart == "" && fracPart == "" {
		return nil, faults.InvalidAmount(text)
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return nil, faults.InvalidAmount(text)
	}
	if len(fracPart) > 18 {
		return nil, faults.InvalidAmount(text)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, faults.InvalidAmount(text)
	}
	amount := new(big.Int).Mul(whole, weiPerToken)

	if fracPart != "" {
		padded := fracPart + strings.Repeat("0", 18-len(fracPart))
		frac, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, faults.InvalidAmount(text)
		}
		amount.Add(amount, frac)
	}

	if amount.Sign() <= 0 {
		return nil, faults.InvalidAmount(text)
	}
	return amount, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// SplitShares divides total across k participants plus the implicit host.
// Each participant starts at floor(total/(k+1)); any rounding shortfall is
// taken back out of the participants' shares, never the host's, with the
// final unit remainder absorbed by the first participant. Dust totals that
// would push a share below zero clamp at zero, leaving the host to cover the
// difference. The identity sum(shares) + hostShare == total holds exactly and
// every output is non-negative.
func SplitShares(total *big.Int, k int) (shares []*big.Int, hostShare *big.Int) {
	if k < 1 || total == nil || total.Sign() <= 0 {
		return nil, nil
	}

	n := big.NewInt(int64(k + 1))
	base := new(big.Int).Quo(total, n)

	shares = make([]*big.Int, k)
	for i := range shares {
		shares[i] = new(big.Int).Set(base)
	}

	remainder := new(big.Int).Sub(total, new(big.Int).Mul(base, n))
	if remainder.Sign() > 0 {
		kBig := big.NewInt(int64(k))
		reduction := new(big.Int).Quo(remainder, kBig)
		leftover := new(big.Int).Rem(remainder, kBig)
		for i := range shares {
			shares[i].Sub(shares[i], reduction)
		}
		if leftover.Sign() > 0 {
			shares[0].Sub(shares[0], leftover)
		}
	}
	for i := range shares {
		if shares[i].Sign() < 0 {
			shares[i].SetInt64(0)
		}
	}

	sum := new(big.Int)
	for _, s := range shares {
		sum.Add(sum, s)
	}
	hostShare = new(big.Int).Sub(total, sum)
	return shares, hostShare
}
