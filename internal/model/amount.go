package model

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Decimals — число дробных десятичных знаков в суммах.
const Decimals = 18

// One — единица актива в базовых единицах (10^Decimals).
var One = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))

// Units возвращает n целых единиц актива в базовых единицах.
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), One)
}

// ParseAmount разбирает сумму в базовых единицах из десятичной строки.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// AddChecked складывает суммы и возвращает ErrArithmeticOverflow при переполнении.
func AddChecked(a, b *uint256.Int) (*uint256.Int, error) {
	res, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("add %s + %s: %w", a.Dec(), b.Dec(), ErrArithmeticOverflow)
	}
	return res, nil
}

// SubChecked вычитает b из a и возвращает ErrInsufficientBalance, если b больше a.
func SubChecked(a, b *uint256.Int) (*uint256.Int, error) {
	res, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("subtract %s from %s: %w", b.Dec(), a.Dec(), ErrInsufficientBalance)
	}
	return res, nil
}

// MulChecked перемножает суммы и возвращает ErrArithmeticOverflow при переполнении.
func MulChecked(a, b *uint256.Int) (*uint256.Int, error) {
	res, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("multiply %s * %s: %w", a.Dec(), b.Dec(), ErrArithmeticOverflow)
	}
	return res, nil
}
