package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/goalsaver/internal/model"
)

// Tx описывает операции хранилища леджера внутри одной атомарной транзакции.
// Строки, прочитанные через Tx, заблокированы до конца транзакции.
type Tx interface {
	// LatestGoal возвращает последнюю созданную цель владельца или model.ErrNoActiveGoal.
	LatestGoal(ctx context.Context, owner string) (*model.Goal, error)
	InsertGoal(ctx context.Context, g *model.Goal) (int64, error)
	UpdateGoal(ctx context.Context, g *model.Goal) error

	// GetPod возвращает под с участниками или model.ErrPodNotFound.
	GetPod(ctx context.Context, id int64) (*model.Pod, error)
	InsertPod(ctx context.Context, p *model.Pod) (int64, error)
	// UpdatePod сохраняет агрегат, флаги и вклады участников.
	UpdatePod(ctx context.Context, p *model.Pod) error

	// WalletBalance возвращает баланс кошелька, ноль для неизвестного аккаунта.
	WalletBalance(ctx context.Context, account string) (*uint256.Int, error)
	SetWalletBalance(ctx context.Context, account string, balance *uint256.Int) error

	TokenBalance(ctx context.Context, account string) (*uint256.Int, error)
	SetTokenBalance(ctx context.Context, account string, balance *uint256.Int) error

	AccountStats(ctx context.Context, account string) (*model.AccountStats, error)
	SaveAccountStats(ctx context.Context, s *model.AccountStats) error

	ClaimedMilestones(ctx context.Context, account string) ([]int, error)
	// InsertMilestoneClaim возвращает model.ErrAlreadyClaimed, если этап уже получен.
	InsertMilestoneClaim(ctx context.Context, account string, index int) error
	OwnedBadges(ctx context.Context, account string) ([]int, error)
	// InsertBadgeOwner возвращает model.ErrAlreadyOwned, если бейдж уже выдан.
	InsertBadgeOwner(ctx context.Context, account string, badgeID int) error

	// InterestRate возвращает сохранённую ставку; ok=false, если ставка ещё не задавалась.
	InterestRate(ctx context.Context) (rate uint64, ok bool, err error)
	SetInterestRate(ctx context.Context, rateBps uint64) error

	AppendEvent(ctx context.Context, e *model.Event) (int64, error)
}

const (
	interestRateKey = "interest_rate_bps"
	// eventsLockKey сериализует запись в журнал, чтобы идентификаторы событий фиксировались по порядку.
	eventsLockKey = 0x676f616c
)

type pgTx struct {
	tx           pgx.Tx
	eventsLocked bool
}

func dec(v *uint256.Int) string {
	return v.Dec()
}

func parseNumeric(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v, nil
}

func (t *pgTx) LatestGoal(ctx context.Context, owner string) (*model.Goal, error) {
	var (
		g                        model.Goal
		target, current, pending string
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, owner, target_amount::text, current_amount::text, pending_interest::text,
		        start_time, end_time, accrued_at, is_completed, is_withdrawn
		 FROM goals
		 WHERE owner = $1
		 ORDER BY id DESC
		 LIMIT 1
		 FOR UPDATE`,
		owner,
	).Scan(&g.ID, &g.Owner, &target, &current, &pending,
		&g.StartTime, &g.EndTime, &g.AccruedAt, &g.IsCompleted, &g.IsWithdrawn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrNoActiveGoal, owner)
		}
		return nil, fmt.Errorf("select goal: %w", err)
	}

	if g.TargetAmount, err = parseNumeric(target); err != nil {
		return nil, err
	}
	if g.CurrentAmount, err = parseNumeric(current); err != nil {
		return nil, err
	}
	if g.PendingInterest, err = parseNumeric(pending); err != nil {
		return nil, err
	}

	return &g, nil
}

func (t *pgTx) InsertGoal(ctx context.Context, g *model.Goal) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO goals (owner, target_amount, current_amount, pending_interest, start_time, end_time, accrued_at, is_completed, is_withdrawn)
		 VALUES ($1, $2::text::numeric, $3::text::numeric, $4::text::numeric, $5, $6, $7, $8, $9)
		 RETURNING id`,
		g.Owner, dec(g.TargetAmount), dec(g.CurrentAmount), dec(g.PendingInterest),
		g.StartTime, g.EndTime, g.AccruedAt, g.IsCompleted, g.IsWithdrawn,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", model.ErrGoalAlreadyActive, g.Owner)
		}
		return 0, fmt.Errorf("insert goal: %w", err)
	}
	return id, nil
}

func (t *pgTx) UpdateGoal(ctx context.Context, g *model.Goal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE goals
		 SET current_amount = $2::text::numeric, pending_interest = $3::text::numeric,
		     accrued_at = $4, is_completed = $5, is_withdrawn = $6
		 WHERE id = $1`,
		g.ID, dec(g.CurrentAmount), dec(g.PendingInterest), g.AccruedAt, g.IsCompleted, g.IsWithdrawn,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}

func (t *pgTx) GetPod(ctx context.Context, id int64) (*model.Pod, error) {
	var (
		p               model.Pod
		target, current string
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, creator, target_amount::text, current_amount::text, is_completed, is_settled, created_at
		 FROM pods
		 WHERE id = $1
		 FOR UPDATE`,
		id,
	).Scan(&p.ID, &p.Name, &p.Creator, &target, &current, &p.IsCompleted, &p.IsSettled, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", model.ErrPodNotFound, id)
		}
		return nil, fmt.Errorf("select pod: %w", err)
	}
	if p.TargetAmount, err = parseNumeric(target); err != nil {
		return nil, err
	}
	if p.CurrentAmount, err = parseNumeric(current); err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(ctx,
		`SELECT account, contribution::text
		 FROM pod_members
		 WHERE pod_id = $1
		 ORDER BY position
		 FOR UPDATE`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select pod members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var account, contribution string
		if err := rows.Scan(&account, &contribution); err != nil {
			return nil, fmt.Errorf("scan pod member: %w", err)
		}
		c, err := parseNumeric(contribution)
		if err != nil {
			return nil, err
		}
		p.Members = append(p.Members, model.PodMember{Account: account, Contribution: c})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &p, nil
}

func (t *pgTx) InsertPod(ctx context.Context, p *model.Pod) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO pods (name, creator, target_amount, current_amount, is_completed, is_settled, created_at)
		 VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5, $6, $7)
		 RETURNING id`,
		p.Name, p.Creator, dec(p.TargetAmount), dec(p.CurrentAmount), p.IsCompleted, p.IsSettled, p.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert pod: %w", err)
	}

	batch := &pgx.Batch{}
	for i, m := range p.Members {
		batch.Queue(
			`INSERT INTO pod_members (pod_id, position, account, contribution) VALUES ($1, $2, $3, $4::text::numeric)`,
			id, i, m.Account, dec(m.Contribution),
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert pod members: %w", err)
	}

	return id, nil
}

func (t *pgTx) UpdatePod(ctx context.Context, p *model.Pod) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE pods SET current_amount = $2::text::numeric, is_completed = $3, is_settled = $4 WHERE id = $1`,
		p.ID, dec(p.CurrentAmount), p.IsCompleted, p.IsSettled,
	)
	if err != nil {
		return fmt.Errorf("update pod: %w", err)
	}

	batch := &pgx.Batch{}
	for _, m := range p.Members {
		batch.Queue(
			`UPDATE pod_members SET contribution = $3::text::numeric WHERE pod_id = $1 AND account = $2`,
			p.ID, m.Account, dec(m.Contribution),
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update pod members: %w", err)
	}

	return nil
}

func (t *pgTx) balance(ctx context.Context, table, account string) (*uint256.Int, error) {
	var v string
	err := t.tx.QueryRow(ctx,
		`SELECT balance::text FROM `+table+` WHERE account = $1 FOR UPDATE`,
		account,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("select %s balance: %w", table, err)
	}
	return parseNumeric(v)
}

func (t *pgTx) setBalance(ctx context.Context, table, account string, balance *uint256.Int) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO `+table+` (account, balance) VALUES ($1, $2::text::numeric)
		 ON CONFLICT (account) DO UPDATE SET balance = EXCLUDED.balance`,
		account, dec(balance),
	)
	if err != nil {
		return fmt.Errorf("upsert %s balance: %w", table, err)
	}
	return nil
}

func (t *pgTx) WalletBalance(ctx context.Context, account string) (*uint256.Int, error) {
	return t.balance(ctx, "wallets", account)
}

func (t *pgTx) SetWalletBalance(ctx context.Context, account string, balance *uint256.Int) error {
	return t.setBalance(ctx, "wallets", account, balance)
}

func (t *pgTx) TokenBalance(ctx context.Context, account string) (*uint256.Int, error) {
	return t.balance(ctx, "token_balances", account)
}

func (t *pgTx) SetTokenBalance(ctx context.Context, account string, balance *uint256.Int) error {
	return t.setBalance(ctx, "token_balances", account, balance)
}

func (t *pgTx) AccountStats(ctx context.Context, account string) (*model.AccountStats, error) {
	s := &model.AccountStats{Account: account}
	var saved string
	err := t.tx.QueryRow(ctx,
		`SELECT total_saved::text, goals_completed FROM account_stats WHERE account = $1 FOR UPDATE`,
		account,
	).Scan(&saved, &s.GoalsCompleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.TotalSaved = new(uint256.Int)
			return s, nil
		}
		return nil, fmt.Errorf("select account stats: %w", err)
	}
	if s.TotalSaved, err = parseNumeric(saved); err != nil {
		return nil, err
	}
	return s, nil
}

func (t *pgTx) SaveAccountStats(ctx context.Context, s *model.AccountStats) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO account_stats (account, total_saved, goals_completed) VALUES ($1, $2::text::numeric, $3)
		 ON CONFLICT (account) DO UPDATE SET total_saved = EXCLUDED.total_saved, goals_completed = EXCLUDED.goals_completed`,
		s.Account, dec(s.TotalSaved), s.GoalsCompleted,
	)
	if err != nil {
		return fmt.Errorf("upsert account stats: %w", err)
	}
	return nil
}

func (t *pgTx) ints(ctx context.Context, query, account string) ([]int, error) {
	rows, err := t.tx.Query(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("select claims: %w", err)
	}
	defer rows.Close()

	var res []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (t *pgTx) ClaimedMilestones(ctx context.Context, account string) ([]int, error) {
	return t.ints(ctx, `SELECT milestone_index FROM milestone_claims WHERE account = $1 ORDER BY milestone_index`, account)
}

func (t *pgTx) InsertMilestoneClaim(ctx context.Context, account string, index int) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO milestone_claims (account, milestone_index) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		account, index,
	)
	if err != nil {
		return fmt.Errorf("insert milestone claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: milestone %d", model.ErrAlreadyClaimed, index)
	}
	return nil
}

func (t *pgTx) OwnedBadges(ctx context.Context, account string) ([]int, error) {
	return t.ints(ctx, `SELECT badge_id FROM badge_owners WHERE account = $1 ORDER BY badge_id`, account)
}

func (t *pgTx) InsertBadgeOwner(ctx context.Context, account string, badgeID int) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO badge_owners (account, badge_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		account, badgeID,
	)
	if err != nil {
		return fmt.Errorf("insert badge owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: badge %d", model.ErrAlreadyOwned, badgeID)
	}
	return nil
}

func (t *pgTx) InterestRate(ctx context.Context) (uint64, bool, error) {
	var v string
	err := t.tx.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, interestRateKey).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("select interest rate: %w", err)
	}
	rate, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse interest rate %q: %w", v, err)
	}
	return rate, true, nil
}

func (t *pgTx) SetInterestRate(ctx context.Context, rateBps uint64) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		interestRateKey, strconv.FormatUint(rateBps, 10),
	)
	if err != nil {
		return fmt.Errorf("upsert interest rate: %w", err)
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *model.Event) (int64, error) {
	if !t.eventsLocked {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(eventsLockKey)); err != nil {
			return 0, fmt.Errorf("lock events: %w", err)
		}
		t.eventsLocked = true
	}

	data := e.Data
	if data == nil {
		data = map[string]string{}
	}

	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO events (call_id, kind, account, pod_id, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		e.CallID, string(e.Kind), e.Account, e.PodID, data, e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}
