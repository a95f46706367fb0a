package fees

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrFeeExceedsPrice is returned when the combined marketplace fee and royalty
// would exceed the sale price, typically the result of misconfigured basis
// points on a small price.
var ErrFeeExceedsPrice = errors.New("fees: fee and royalty exceed price")

var tenThousand = big.NewInt(10_000)

// Distribution is the exact three-way split of a gross sale price. The
// amounts always sum to the price: the floor-division remainder is credited
// to the seller, never lost.
type Distribution struct {
	Seller  *big.Int
	Royalty *big.Int
	Fee     *big.Int
}

// Split computes the settlement distribution for a sale. royaltyBps is zero
// when the asset carries no royalty record. Both rates are floored against
// the price independently; the seller receives the remainder.
func Split(price *big.Int, royaltyBps uint32, feeBps uint32) (Distribution, error) {
	if price == nil || price.Sign() <= 0 {
		return Distribution{}, fmt.Errorf("fees: price must be positive")
	}
	fee := new(big.Int).Mul(price, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Div(fee, tenThousand)
	royaltyAmt := new(big.Int).Mul(price, new(big.Int).SetUint64(uint64(royaltyBps)))
	royaltyAmt.Div(royaltyAmt, tenThousand)
	deducted := new(big.Int).Add(fee, royaltyAmt)
	if deducted.Cmp(price) > 0 {
		return Distribution{}, fmt.Errorf("%w: fee %s + royalty %s against price %s", ErrFeeExceedsPrice, fee, royaltyAmt, price)
	}
	seller := new(big.Int).Sub(price, deducted)
	return Distribution{Seller: seller, Royalty: royaltyAmt, Fee: fee}, nil
}

// Total returns the sum of all distribution legs.
func (d Distribution) Total() *big.Int {
	total := big.NewInt(0)
	if d.Seller != nil {
		total.Add(total, d.Seller)
	}
	if d.Royalty != nil {
		total.Add(total, d.Royalty)
	}
	if d.Fee != nil {
		total.Add(total, d.Fee)
	}
	return total
}
