package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/mmeshcher/goalsaver/internal/model"
)

// recordProgress обновляет накопительную статистику аккаунта. TotalSaved только растёт:
// выводы не отменяют уже достигнутые этапы.
func recordProgress(c *call, account string, saved *uint256.Int, completed bool) error {
	stats, err := c.tx.AccountStats(c.ctx, account)
	if err != nil {
		return err
	}
	if stats.TotalSaved, err = model.AddChecked(stats.TotalSaved, saved); err != nil {
		return err
	}
	if completed {
		stats.GoalsCompleted++
	}
	return c.tx.SaveAccountStats(c.ctx, stats)
}

// GetAvailableMilestones возвращает индексы достигнутых и ещё не полученных этапов по возрастанию.
func (s *Service) GetAvailableMilestones(ctx context.Context, account string) ([]int, error) {
	var available []int
	err := s.run(ctx, func(c *call) error {
		stats, err := c.tx.AccountStats(ctx, account)
		if err != nil {
			return err
		}
		claimed, err := c.tx.ClaimedMilestones(ctx, account)
		if err != nil {
			return err
		}

		available = []int{}
		for _, m := range s.opts.Catalog.Milestones {
			if stats.TotalSaved.Lt(m.Threshold) {
				break
			}
			if !slices.Contains(claimed, m.Index) {
				available = append(available, m.Index)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return available, nil
}

// ClaimReward начисляет токены за этап. Отметка о получении ставится до начисления.
func (s *Service) ClaimReward(ctx context.Context, account string, index int) (*uint256.Int, error) {
	m, ok := s.opts.Catalog.Milestone(index)
	if !ok {
		return nil, fmt.Errorf("%w: unknown milestone %d", model.ErrMilestoneNotEligible, index)
	}

	err := s.run(ctx, func(c *call) error {
		stats, err := c.tx.AccountStats(ctx, account)
		if err != nil {
			return err
		}
		if stats.TotalSaved.Lt(m.Threshold) {
			return fmt.Errorf("%w: milestone %d requires %s", model.ErrMilestoneNotEligible, index, m.Threshold.Dec())
		}

		if err := c.tx.InsertMilestoneClaim(ctx, account, index); err != nil {
			return err
		}

		balance, err := c.tx.TokenBalance(ctx, account)
		if err != nil {
			return err
		}
		if balance, err = model.AddChecked(balance, m.RewardAmount); err != nil {
			return err
		}
		if err := c.tx.SetTokenBalance(ctx, account, balance); err != nil {
			return err
		}

		return c.emit(model.EventMilestoneClaimed, account, nil, map[string]string{
			"index":  strconv.Itoa(index),
			"reward": m.RewardAmount.Dec(),
		})
	})
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(m.RewardAmount), nil
}

// GetAvailableBadges возвращает идентификаторы бейджей, на которые аккаунт имеет право и которыми ещё не владеет.
func (s *Service) GetAvailableBadges(ctx context.Context, account string) ([]int, error) {
	var available []int
	err := s.run(ctx, func(c *call) error {
		stats, err := c.tx.AccountStats(ctx, account)
		if err != nil {
			return err
		}
		owned, err := c.tx.OwnedBadges(ctx, account)
		if err != nil {
			return err
		}

		available = []int{}
		for _, b := range s.opts.Catalog.Badges {
			if badgeEligible(b, stats) && !slices.Contains(owned, b.ID) {
				available = append(available, b.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return available, nil
}

// ClaimBadge выдаёт бейдж аккаунту.
func (s *Service) ClaimBadge(ctx context.Context, account string, badgeID int) error {
	b, ok := s.opts.Catalog.Badge(badgeID)
	if !ok {
		return fmt.Errorf("%w: unknown badge %d", model.ErrBadgeNotEligible, badgeID)
	}

	return s.run(ctx, func(c *call) error {
		stats, err := c.tx.AccountStats(ctx, account)
		if err != nil {
			return err
		}
		if !badgeEligible(b, stats) {
			return fmt.Errorf("%w: badge %d", model.ErrBadgeNotEligible, badgeID)
		}

		if err := c.tx.InsertBadgeOwner(ctx, account, badgeID); err != nil {
			return err
		}

		return c.emit(model.EventBadgeClaimed, account, nil, map[string]string{
			"badge_id":     strconv.Itoa(badgeID),
			"metadata_uri": b.MetadataURI,
		})
	})
}

// GetBadgeDetails возвращает описание бейджа.
func (s *Service) GetBadgeDetails(badgeID int) (model.Badge, error) {
	b, ok := s.opts.Catalog.Badge(badgeID)
	if !ok {
		return model.Badge{}, fmt.Errorf("%w: %d", model.ErrBadgeNotFound, badgeID)
	}
	return b, nil
}

// BalanceOf возвращает баланс наградных токенов и число бейджей аккаунта.
func (s *Service) BalanceOf(ctx context.Context, account string) (*model.RewardBalance, error) {
	var res *model.RewardBalance
	err := s.run(ctx, func(c *call) error {
		tokens, err := c.tx.TokenBalance(ctx, account)
		if err != nil {
			return err
		}
		owned, err := c.tx.OwnedBadges(ctx, account)
		if err != nil {
			return err
		}
		res = &model.RewardBalance{Tokens: tokens, Badges: len(owned)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func badgeEligible(b model.Badge, stats *model.AccountStats) bool {
	switch b.Kind {
	case model.BadgeTotalSaved:
		return !stats.TotalSaved.Lt(b.Requirement)
	case model.BadgeGoalsCompleted:
		return !uint256.NewInt(stats.GoalsCompleted).Lt(b.Requirement)
	default:
		return false
	}
}
