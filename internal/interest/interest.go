// Package interest рассчитывает простые проценты по накопительной цели.
package interest

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/mmeshcher/goalsaver/internal/model"
)

const (
	// RateBasis — знаменатель ставки в базисных пунктах.
	RateBasis = 10_000
	// SecondsPerYear — длина расчётного года (365 дней).
	SecondsPerYear = 365 * 24 * 60 * 60
	// MaxRateBps — верхняя граница допустимой ставки (1000% годовых).
	MaxRateBps = 100_000
)

var denominator = uint256.NewInt(RateBasis * SecondsPerYear)

// Accrue возвращает проценты, накопленные суммой amount с момента from до now по ставке rateBps.
//
// Используется ставка на момент вызова для всего интервала. Результат округляется вниз.
// Если now раньше from, интервал считается нулевым.
func Accrue(amount *uint256.Int, from, now time.Time, rateBps uint64) (*uint256.Int, error) {
	elapsed := now.Unix() - from.Unix()
	if elapsed <= 0 || rateBps == 0 || amount.IsZero() {
		return new(uint256.Int), nil
	}

	scaled, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(rateBps))
	if overflow {
		return nil, fmt.Errorf("accrue interest on %s: %w", amount.Dec(), model.ErrArithmeticOverflow)
	}
	scaled, overflow = scaled.MulOverflow(scaled, uint256.NewInt(uint64(elapsed)))
	if overflow {
		return nil, fmt.Errorf("accrue interest on %s over %ds: %w", amount.Dec(), elapsed, model.ErrArithmeticOverflow)
	}

	return scaled.Div(scaled, denominator), nil
}

// ValidateRate проверяет, что ставка в допустимом диапазоне.
func ValidateRate(rateBps uint64) error {
	if rateBps > MaxRateBps {
		return fmt.Errorf("%w: %d bps", model.ErrInvalidRate, rateBps)
	}
	return nil
}
