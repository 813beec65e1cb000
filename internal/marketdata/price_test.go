package marketdata

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceFromSqrtX96UnitPrice(t *testing.T) {
	// sqrtPriceX96 == 2^96 encodes a raw price of exactly 1.0.
	q := new(big.Int).Lsh(big.NewInt(1), 96)
	assert.InEpsilon(t, 1.0, PriceFromSqrtX96(q, 18, 18), 1e-12)

	// The same encoding with USDC/WETH style decimals shifts by 10^(6-18).
	assert.InEpsilon(t, 1e-12, PriceFromSqrtX96(q, 6, 18), 1e-9)
}

func TestPriceFromSqrtX96DegenerateInputs(t *testing.T) {
	assert.Zero(t, PriceFromSqrtX96(nil, 18, 18))
	assert.Zero(t, PriceFromSqrtX96(big.NewInt(0), 18, 18))
	assert.Zero(t, PriceFromSqrtX96(big.NewInt(-1), 18, 18))
}

func TestSqrtX96RoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		price float64
		dec0  int
		dec1  int
	}{
		{"weth usdc", 3500.0, 18, 6},
		{"usdc weth", 0.000285, 6, 18},
		{"equal decimals", 1.0001, 18, 18},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := SqrtX96FromPrice(tc.price, tc.dec0, tc.dec1)
			assert.Positive(t, encoded.Sign())
			decoded := PriceFromSqrtX96(encoded, tc.dec0, tc.dec1)
			assert.InEpsilon(t, tc.price, decoded, 1e-9)
		})
	}
}
