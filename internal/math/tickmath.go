package math

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Tick bounds of the venue's price grid.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// sqrtRatioMul holds the per-bit multipliers of the product expansion of
// sqrt(1.0001)^tick in Q128.128. Index i is the multiplier applied when
// bit i+1 of |tick| is set; two seed values cover bit 0.
var (
	sqrtSeedOdd  = uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001")
	sqrtSeedEven = uint256.MustFromHex("0x100000000000000000000000000000000")

	sqrtRatioMul = [19]*uint256.Int{
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}

	maxUint256 = new(uint256.Int).Not(new(uint256.Int))
	oneShift32 = new(uint256.Int).Lsh(uint256.NewInt(1), 32)
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) in Q64.96, matching the
// venue's own tick math bit for bit.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of range [%d, %d]", tick, MinTick, MaxTick)
	}

	absTick := uint64(tick)
	if tick < 0 {
		absTick = uint64(-int64(tick))
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(sqrtSeedOdd)
	} else {
		ratio.Set(sqrtSeedEven)
	}
	for i := 0; i < len(sqrtRatioMul); i++ {
		if absTick&(1<<(i+1)) != 0 {
			ratio.Mul(ratio, sqrtRatioMul[i])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so that TickAtSqrtRatio of the
	// result returns the input tick.
	rem := new(uint256.Int).Mod(ratio, oneShift32)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= the
// given Q64.96 price.
func TickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, error) {
	minRatio, _ := SqrtRatioAtTick(MinTick)
	if sqrtPriceX96.Lt(minRatio) {
		return 0, fmt.Errorf("sqrt price %s below minimum", sqrtPriceX96)
	}

	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		r, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if r.Gt(sqrtPriceX96) {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	return lo, nil
}
