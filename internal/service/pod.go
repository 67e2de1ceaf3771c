package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/mmeshcher/goalsaver/internal/model"
)

// CreatePod создаёт групповую цель. Создатель всегда становится первым участником,
// повторяющиеся адреса отбрасываются.
func (s *Service) CreatePod(ctx context.Context, creator, name string, target *uint256.Int, members []string) (*model.Pod, error) {
	if target.IsZero() {
		return nil, fmt.Errorf("target amount: %w", model.ErrInvalidAmount)
	}
	if len(members) == 0 {
		return nil, model.ErrEmptyMembership
	}

	accounts := []string{creator}
	seen := map[string]struct{}{creator: {}}
	for _, m := range members {
		account, err := normalizeAccount(m)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[account]; ok {
			continue
		}
		seen[account] = struct{}{}
		accounts = append(accounts, account)
	}

	var pod *model.Pod
	err := s.run(ctx, func(c *call) error {
		p := &model.Pod{
			Name:          strings.TrimSpace(name),
			Creator:       creator,
			TargetAmount:  new(uint256.Int).Set(target),
			CurrentAmount: new(uint256.Int),
			CreatedAt:     c.now,
		}
		for _, a := range accounts {
			p.Members = append(p.Members, model.PodMember{Account: a, Contribution: new(uint256.Int)})
		}

		id, err := c.tx.InsertPod(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id

		pod = p
		return c.emit(model.EventPodCreated, creator, &p.ID, map[string]string{
			"name":          p.Name,
			"target_amount": p.TargetAmount.Dec(),
			"members":       strings.Join(accounts, ","),
		})
	})
	if err != nil {
		return nil, err
	}
	return pod, nil
}

// Contribute переводит amount из кошелька участника в под.
func (s *Service) Contribute(ctx context.Context, podID int64, member string, amount *uint256.Int) (*model.Pod, error) {
	var pod *model.Pod
	err := s.run(ctx, func(c *call) error {
		p, err := c.tx.GetPod(ctx, podID)
		if err != nil {
			return err
		}
		m, ok := p.Member(member)
		if !ok {
			return fmt.Errorf("%w: %s is not a member of pod %d", model.ErrUnauthorized, member, podID)
		}
		if amount.IsZero() {
			return model.ErrInvalidAmount
		}
		if p.IsSettled {
			return fmt.Errorf("%w: pod %d", model.ErrPodSettled, podID)
		}

		if m.Contribution, err = model.AddChecked(m.Contribution, amount); err != nil {
			return err
		}
		if p.CurrentAmount, err = model.AddChecked(p.CurrentAmount, amount); err != nil {
			return err
		}
		if err := checkPodBalance(p); err != nil {
			return err
		}
		completed := !p.IsCompleted && !p.CurrentAmount.Lt(p.TargetAmount)
		if completed {
			p.IsCompleted = true
		}
		if err := c.tx.UpdatePod(ctx, p); err != nil {
			return err
		}

		if err := recordProgress(c, member, amount, false); err != nil {
			return err
		}
		if completed {
			for _, pm := range p.Members {
				if err := recordProgress(c, pm.Account, new(uint256.Int), true); err != nil {
					return err
				}
			}
		}

		if err := c.transfer(member, model.CustodyAccount, amount); err != nil {
			return err
		}

		if err := c.emit(model.EventContributionMade, member, &p.ID, map[string]string{
			"amount": amount.Dec(),
		}); err != nil {
			return err
		}
		if completed {
			if err := emitGoalCompleted(c, member, &p.ID, p.CurrentAmount); err != nil {
				return err
			}
		}

		pod = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pod, nil
}

// SettlePod выплачивает накопления завершённого пода участникам по настроенному правилу.
func (s *Service) SettlePod(ctx context.Context, podID int64, member string) ([]model.Payout, error) {
	var payouts []model.Payout
	err := s.run(ctx, func(c *call) error {
		p, err := c.tx.GetPod(ctx, podID)
		if err != nil {
			return err
		}
		if _, ok := p.Member(member); !ok {
			return fmt.Errorf("%w: %s is not a member of pod %d", model.ErrUnauthorized, member, podID)
		}
		if p.IsSettled {
			return fmt.Errorf("%w: pod %d", model.ErrPodSettled, podID)
		}
		if !p.IsCompleted {
			return fmt.Errorf("%w: pod %d", model.ErrPodNotCompleted, podID)
		}

		payouts, err = computePayouts(p, s.opts.PayoutPolicy)
		if err != nil {
			return err
		}

		p.IsSettled = true
		if err := c.tx.UpdatePod(ctx, p); err != nil {
			return err
		}

		for _, po := range payouts {
			if err := c.transfer(model.CustodyAccount, po.Account, po.Amount); err != nil {
				return err
			}
		}

		return c.emit(model.EventPodSettled, member, &p.ID, map[string]string{
			"total":  p.CurrentAmount.Dec(),
			"policy": string(s.opts.PayoutPolicy),
		})
	})
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// GetPod возвращает под с участниками.
func (s *Service) GetPod(ctx context.Context, podID int64) (*model.Pod, error) {
	var pod *model.Pod
	err := s.run(ctx, func(c *call) error {
		var err error
		pod, err = c.tx.GetPod(ctx, podID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pod, nil
}

// computePayouts делит CurrentAmount пода между участниками. Все, кроме последнего
// по порядку вступления, получают долю с округлением вниз; последний получает остаток,
// поэтому сумма выплат всегда равна CurrentAmount.
func computePayouts(p *model.Pod, policy model.PayoutPolicy) ([]model.Payout, error) {
	if len(p.Members) == 0 {
		return nil, model.ErrEmptyMembership
	}

	total := p.CurrentAmount
	n := uint256.NewInt(uint64(len(p.Members)))
	remaining := new(uint256.Int).Set(total)
	payouts := make([]model.Payout, 0, len(p.Members))

	for i, m := range p.Members {
		var share *uint256.Int
		switch {
		case i == len(p.Members)-1:
			share = new(uint256.Int).Set(remaining)
		case policy == model.PayoutEqual:
			share = new(uint256.Int).Div(total, n)
		case policy == model.PayoutProportional:
			if total.IsZero() {
				share = new(uint256.Int)
				break
			}
			share, _ = new(uint256.Int).MulDivOverflow(total, m.Contribution, total)
		default:
			return nil, fmt.Errorf("unknown payout policy %q", policy)
		}

		var err error
		if remaining, err = model.SubChecked(remaining, share); err != nil {
			return nil, err
		}
		payouts = append(payouts, model.Payout{Account: m.Account, Amount: share})
	}

	return payouts, nil
}

// checkPodBalance проверяет, что сумма вкладов равна агрегату пода.
func checkPodBalance(p *model.Pod) error {
	sum := new(uint256.Int)
	for _, m := range p.Members {
		var err error
		if sum, err = model.AddChecked(sum, m.Contribution); err != nil {
			return err
		}
	}
	if !sum.Eq(p.CurrentAmount) {
		return fmt.Errorf("pod %d: contributions %s != balance %s", p.ID, sum.Dec(), p.CurrentAmount.Dec())
	}
	return nil
}
