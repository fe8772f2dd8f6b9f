package payment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToFen 将以元为单位的金额转换为分，拒绝非正数与小于 1 分的精度
func ToFen(yuan decimal.Decimal) (int64, error) {
	if !yuan.IsPositive() {
		return 0, fmt.Errorf("amount must be positive: %s", yuan)
	}
	fen := yuan.Mul(hundred)
	if !fen.Equal(fen.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has sub-fen precision", yuan)
	}
	return fen.IntPart(), nil
}

// FenToYuan 分转元
func FenToYuan(fen int64) decimal.Decimal {
	return decimal.New(fen, -2)
}
