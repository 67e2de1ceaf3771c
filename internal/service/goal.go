package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"github.com/mmeshcher/goalsaver/internal/interest"
	"github.com/mmeshcher/goalsaver/internal/model"
	"github.com/mmeshcher/goalsaver/internal/penalty"
)

// CreateGoal создаёт цель владельца с целевой суммой и сроком.
func (s *Service) CreateGoal(ctx context.Context, owner string, target *uint256.Int, deadline time.Time) (*model.Goal, error) {
	if target.IsZero() {
		return nil, fmt.Errorf("target amount: %w", model.ErrInvalidAmount)
	}

	var goal *model.Goal
	err := s.run(ctx, func(c *call) error {
		end := deadline.UTC().Truncate(time.Second)
		if !end.After(c.now) {
			return fmt.Errorf("%w: %s", model.ErrDeadlineInPast, end.Format(time.RFC3339))
		}

		latest, err := c.tx.LatestGoal(ctx, owner)
		switch {
		case err == nil && !latest.Resolved():
			return fmt.Errorf("%w: goal %d", model.ErrGoalAlreadyActive, latest.ID)
		case err != nil && !isNoGoal(err):
			return err
		}

		goal = &model.Goal{
			Owner:           owner,
			TargetAmount:    new(uint256.Int).Set(target),
			CurrentAmount:   new(uint256.Int),
			PendingInterest: new(uint256.Int),
			StartTime:       c.now,
			EndTime:         end,
			AccruedAt:       c.now,
		}
		if goal.ID, err = c.tx.InsertGoal(ctx, goal); err != nil {
			return err
		}

		return c.emit(model.EventGoalCreated, owner, nil, map[string]string{
			"target_amount": goal.TargetAmount.Dec(),
			"deadline":      strconv.FormatInt(goal.EndTime.Unix(), 10),
		})
	})
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// Deposit переводит amount из кошелька владельца в цель.
func (s *Service) Deposit(ctx context.Context, owner string, amount *uint256.Int) (*model.Goal, error) {
	if amount.IsZero() {
		return nil, model.ErrInvalidAmount
	}

	var goal *model.Goal
	err := s.run(ctx, func(c *call) error {
		g, err := s.openGoal(c, owner)
		if err != nil {
			return err
		}
		if err := s.checkpointInterest(c, g); err != nil {
			return err
		}

		if g.CurrentAmount, err = model.AddChecked(g.CurrentAmount, amount); err != nil {
			return err
		}
		completed := markCompleted(g)
		if err := c.tx.UpdateGoal(ctx, g); err != nil {
			return err
		}
		if err := recordProgress(c, owner, amount, completed); err != nil {
			return err
		}

		if err := c.transfer(owner, model.CustodyAccount, amount); err != nil {
			return err
		}

		if err := c.emit(model.EventDepositMade, owner, nil, map[string]string{
			"amount": amount.Dec(),
		}); err != nil {
			return err
		}
		if completed {
			if err := emitGoalCompleted(c, owner, nil, g.CurrentAmount); err != nil {
				return err
			}
		}

		goal = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// Withdraw выводит amount из цели в кошелёк владельца. До срока у незавершённой цели
// удерживается штраф, который поступает в резерв процентов.
func (s *Service) Withdraw(ctx context.Context, owner string, amount *uint256.Int) (*model.Withdrawal, error) {
	if amount.IsZero() {
		return nil, model.ErrInvalidAmount
	}

	var res *model.Withdrawal
	err := s.run(ctx, func(c *call) error {
		g, err := s.openGoal(c, owner)
		if err != nil {
			return err
		}
		if amount.Gt(g.CurrentAmount) {
			return fmt.Errorf("withdraw %s of %s: %w", amount.Dec(), g.CurrentAmount.Dec(), model.ErrInsufficientBalance)
		}

		fee, err := s.opts.Penalty.Penalty(penalty.Input{
			Amount:      amount,
			IsCompleted: g.IsCompleted,
			Start:       g.StartTime,
			End:         g.EndTime,
			Now:         c.now,
		})
		if err != nil {
			return err
		}
		payout, err := model.SubChecked(amount, fee)
		if err != nil {
			return err
		}

		if err := s.checkpointInterest(c, g); err != nil {
			return err
		}
		if g.CurrentAmount, err = model.SubChecked(g.CurrentAmount, amount); err != nil {
			return err
		}
		if g.CurrentAmount.IsZero() {
			g.IsWithdrawn = true
		}
		if err := c.tx.UpdateGoal(ctx, g); err != nil {
			return err
		}

		if err := c.transfer(model.CustodyAccount, owner, payout); err != nil {
			return err
		}
		if err := c.transfer(model.CustodyAccount, model.ReserveAccount, fee); err != nil {
			return err
		}

		res = &model.Withdrawal{Amount: new(uint256.Int).Set(amount), Penalty: fee, Payout: payout}
		return c.emit(model.EventWithdrawalMade, owner, nil, map[string]string{
			"amount":  amount.Dec(),
			"penalty": fee.Dec(),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreditInterest зачисляет накопленные проценты из резерва в цель.
func (s *Service) CreditInterest(ctx context.Context, owner string) (*uint256.Int, error) {
	var credited *uint256.Int
	err := s.run(ctx, func(c *call) error {
		g, err := s.openGoal(c, owner)
		if err != nil {
			return err
		}
		if err := s.checkpointInterest(c, g); err != nil {
			return err
		}

		credited = g.PendingInterest
		if credited.IsZero() {
			return nil
		}

		if g.CurrentAmount, err = model.AddChecked(g.CurrentAmount, credited); err != nil {
			return err
		}
		g.PendingInterest = new(uint256.Int)
		completed := markCompleted(g)
		if err := c.tx.UpdateGoal(ctx, g); err != nil {
			return err
		}
		if completed {
			if err := recordProgress(c, owner, new(uint256.Int), true); err != nil {
				return err
			}
		}

		if err := c.transfer(model.ReserveAccount, model.CustodyAccount, credited); err != nil {
			return err
		}

		if err := c.emit(model.EventInterestEarned, owner, nil, map[string]string{
			"amount": credited.Dec(),
		}); err != nil {
			return err
		}
		if completed {
			return emitGoalCompleted(c, owner, nil, g.CurrentAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credited, nil
}

// GetGoal возвращает последнюю цель владельца.
func (s *Service) GetGoal(ctx context.Context, owner string) (*model.Goal, error) {
	var goal *model.Goal
	err := s.run(ctx, func(c *call) error {
		var err error
		goal, err = c.tx.LatestGoal(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// GetProgress возвращает процент достижения цели, не больше 100.
func (s *Service) GetProgress(ctx context.Context, owner string) (uint64, error) {
	g, err := s.GetGoal(ctx, owner)
	if err != nil {
		return 0, err
	}
	return progressPercent(g.CurrentAmount, g.TargetAmount), nil
}

// GetTotalDeposits возвращает текущий баланс цели.
func (s *Service) GetTotalDeposits(ctx context.Context, owner string) (*uint256.Int, error) {
	g, err := s.GetGoal(ctx, owner)
	if err != nil {
		return nil, err
	}
	return g.CurrentAmount, nil
}

// GetEstimatedInterest возвращает проценты, которые будут зачислены при вызове CreditInterest сейчас.
func (s *Service) GetEstimatedInterest(ctx context.Context, owner string) (*uint256.Int, error) {
	var estimated *uint256.Int
	err := s.run(ctx, func(c *call) error {
		g, err := c.tx.LatestGoal(ctx, owner)
		if err != nil {
			return err
		}
		if g.IsWithdrawn {
			estimated = new(uint256.Int)
			return nil
		}
		rate, err := s.interestRate(c)
		if err != nil {
			return err
		}
		accrued, err := interest.Accrue(g.CurrentAmount, g.AccruedAt, c.now, rate)
		if err != nil {
			return err
		}
		estimated, err = model.AddChecked(g.PendingInterest, accrued)
		return err
	})
	if err != nil {
		return nil, err
	}
	return estimated, nil
}

// openGoal возвращает цель владельца, пригодную для изменения.
func (s *Service) openGoal(c *call, owner string) (*model.Goal, error) {
	g, err := c.tx.LatestGoal(c.ctx, owner)
	if err != nil {
		return nil, err
	}
	if g.IsWithdrawn {
		return nil, fmt.Errorf("%w: goal %d", model.ErrGoalAlreadyWithdrawn, g.ID)
	}
	return g, nil
}

// checkpointInterest переносит проценты, накопленные на текущий баланс, в PendingInterest
// и сдвигает AccruedAt. Вызывается перед любым изменением баланса цели.
func (s *Service) checkpointInterest(c *call, g *model.Goal) error {
	rate, err := s.interestRate(c)
	if err != nil {
		return err
	}
	accrued, err := interest.Accrue(g.CurrentAmount, g.AccruedAt, c.now, rate)
	if err != nil {
		return err
	}
	if g.PendingInterest, err = model.AddChecked(g.PendingInterest, accrued); err != nil {
		return err
	}
	if c.now.After(g.AccruedAt) {
		g.AccruedAt = c.now
	}
	return nil
}

func isNoGoal(err error) bool {
	return errors.Is(err, model.ErrNoActiveGoal)
}

// markCompleted выставляет IsCompleted и сообщает, произошло ли это в текущем вызове.
func markCompleted(g *model.Goal) bool {
	if g.IsCompleted || g.CurrentAmount.Lt(g.TargetAmount) {
		return false
	}
	g.IsCompleted = true
	return true
}

func progressPercent(current, target *uint256.Int) uint64 {
	if !current.Lt(target) {
		return 100
	}
	pct, _ := new(uint256.Int).MulDivOverflow(current, uint256.NewInt(100), target)
	return pct.Uint64()
}

func emitGoalCompleted(c *call, account string, podID *int64, final *uint256.Int) error {
	return c.emit(model.EventGoalCompleted, account, podID, map[string]string{
		"final_amount": final.Dec(),
	})
}
