// Package penalty рассчитывает штраф за досрочный вывод средств из цели.
package penalty

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/mmeshcher/goalsaver/internal/model"
)

// Basis — знаменатель доли штрафа в базисных пунктах.
const Basis = 10_000

// Curve задаёт форму зависимости штрафа от оставшегося до срока времени.
type Curve string

const (
	// CurveLinear линейно уменьшает штраф от MaxBps в момент старта до нуля к сроку.
	CurveLinear Curve = "linear"
	// CurveFlat берёт MaxBps от суммы при любом досрочном выводе.
	CurveFlat Curve = "flat"
)

// Calculator — чистая функция расчёта штрафа, параметризованная конфигурацией.
type Calculator struct {
	curve  Curve
	maxBps uint64
}

// NewCalculator создаёт калькулятор с указанной кривой и максимальной долей штрафа.
func NewCalculator(curve Curve, maxBps uint64) (*Calculator, error) {
	switch curve {
	case CurveLinear, CurveFlat:
	default:
		return nil, fmt.Errorf("unknown penalty curve %q", curve)
	}
	if maxBps > Basis {
		return nil, fmt.Errorf("penalty max bps %d exceeds %d", maxBps, Basis)
	}
	return &Calculator{curve: curve, maxBps: maxBps}, nil
}

// Input содержит параметры вывода, от которых зависит штраф.
type Input struct {
	Amount      *uint256.Int
	IsCompleted bool
	Start       time.Time
	End         time.Time
	Now         time.Time
}

// Penalty возвращает штраф для вывода. Гарантирует 0 <= штраф <= Amount.
func (c *Calculator) Penalty(in Input) (*uint256.Int, error) {
	if in.IsCompleted || !in.Now.Before(in.End) || c.maxBps == 0 || in.Amount.IsZero() {
		return new(uint256.Int), nil
	}

	base, overflow := new(uint256.Int).MulOverflow(in.Amount, uint256.NewInt(c.maxBps))
	if overflow {
		return nil, fmt.Errorf("penalty on %s: %w", in.Amount.Dec(), model.ErrArithmeticOverflow)
	}

	if c.curve == CurveFlat {
		return base.Div(base, uint256.NewInt(Basis)), nil
	}

	duration := in.End.Unix() - in.Start.Unix()
	if duration <= 0 {
		return base.Div(base, uint256.NewInt(Basis)), nil
	}

	now := in.Now
	if now.Before(in.Start) {
		now = in.Start
	}
	remaining := in.End.Unix() - now.Unix()
	if remaining <= 0 {
		return new(uint256.Int), nil
	}

	scaled, overflow := base.MulOverflow(base, uint256.NewInt(uint64(remaining)))
	if overflow {
		return nil, fmt.Errorf("penalty on %s: %w", in.Amount.Dec(), model.ErrArithmeticOverflow)
	}
	denom := new(uint256.Int).Mul(uint256.NewInt(Basis), uint256.NewInt(uint64(duration)))

	return scaled.Div(scaled, denom), nil
}
