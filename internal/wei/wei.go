// Package wei converts between display decimal ether strings and integer
// base units. Everything downstream of the message boundary operates on
// *big.Int wei only.
package wei

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// ErrBadAmount rejects malformed or negative monetary inputs.
var ErrBadAmount = errors.New("bad amount")

// etherDecimals is the number of fractional digits in one ether.
const etherDecimals = 18

var weiPerEther = new(big.Int).SetUint64(params.Ether)

// ToWei parses a monetary amount into integer wei.
//
// Accepted forms:
//   - decimal strings ("0.001", "12.5") with up to 18 fractional digits,
//     interpreted as ether;
//   - integer strings with no decimal point and more than 10 digits,
//     interpreted as already-wei;
//   - other non-negative integer strings and Go integers, interpreted as
//     whole ether.
func ToWei(v any) (*big.Int, error) {
	switch x := v.(type) {
	case string:
		return parseAmount(x)
	case int:
		return intEther(int64(x))
	case int64:
		return intEther(x)
	case uint64:
		return new(big.Int).Mul(new(big.Int).SetUint64(x), weiPerEther), nil
	case float64:
		// JSON numbers decode as float64; only integral values are safe.
		if x < 0 || x != float64(int64(x)) {
			return nil, fmt.Errorf("%w: non-integral number %v", ErrBadAmount, x)
		}
		return intEther(int64(x))
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrBadAmount, v)
	}
}

func intEther(n int64) (*big.Int, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative amount %d", ErrBadAmount, n)
	}
	return new(big.Int).Mul(big.NewInt(n), weiPerEther), nil
}

func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrBadAmount)
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: negative amount %q", ErrBadAmount, s)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if !hasDot {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: not a number %q", ErrBadAmount, s)
		}
		// Long integer strings are already wei; short ones are whole ether.
		if len(s) > 10 {
			return n, nil
		}
		return n.Mul(n, weiPerEther), nil
	}

	if whole == "" {
		whole = "0"
	}
	if frac == "" || len(frac) > etherDecimals {
		return nil, fmt.Errorf("%w: fractional part %q", ErrBadAmount, frac)
	}
	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("%w: not a number %q", ErrBadAmount, s)
	}
	// Right-pad the fraction to 18 digits so it reads as wei.
	f, ok := new(big.Int).SetString(frac+strings.Repeat("0", etherDecimals-len(frac)), 10)
	if !ok {
		return nil, fmt.Errorf("%w: not a number %q", ErrBadAmount, s)
	}
	return w.Mul(w, weiPerEther).Add(w, f), nil
}

// ToDecimal renders wei as a decimal ether string. Display only; never feed
// the output into balance arithmetic.
func ToDecimal(amount *big.Int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}
	whole, frac := new(big.Int).QuoRem(amount, weiPerEther, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	digits := strings.TrimRight(fmt.Sprintf("%018s", frac.String()), "0")
	return whole.String() + "." + digits
}

// MustWei is a test and wiring helper; panics on malformed input.
func MustWei(v any) *big.Int {
	n, err := ToWei(v)
	if err != nil {
		panic(err)
	}
	return n
}
