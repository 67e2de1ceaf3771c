package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/goalsaver/internal/model"
	"github.com/mmeshcher/goalsaver/internal/penalty"
	"github.com/mmeshcher/goalsaver/internal/repository"
	"github.com/mmeshcher/goalsaver/internal/rewards"
)

const (
	alice = "0x00000000000000000000000000000000000a11ce"
	bob   = "0x0000000000000000000000000000000000000b0b"
	carol = "0x00000000000000000000000000000000000ca201"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testLedger struct {
	svc  *Service
	repo *memRepo
	now  time.Time
}

func (l *testLedger) advance(d time.Duration) {
	l.now = l.now.Add(d)
}

func newTestLedger(t *testing.T, maxPenaltyBps uint64, policy model.PayoutPolicy) *testLedger {
	t.Helper()

	calc, err := penalty.NewCalculator(penalty.CurveLinear, maxPenaltyBps)
	require.NoError(t, err)
	catalog, err := rewards.Default()
	require.NoError(t, err)

	repo := newMemRepo()
	l := &testLedger{repo: repo, now: start}
	l.svc = NewService(repo, Options{
		Penalty:        calc,
		Catalog:        catalog,
		PayoutPolicy:   policy,
		DefaultRateBps: 500,
	}, nil, nil)
	l.svc.now = func() time.Time { return l.now }

	var n int
	l.svc.newCall = func() string {
		n++
		return "call-" + strconv.Itoa(n)
	}
	return l
}

func (l *testLedger) fund(t *testing.T, account string, amount *uint256.Int) {
	t.Helper()
	_, err := l.svc.FundWallet(context.Background(), account, amount)
	require.NoError(t, err)
}

func units(n uint64) *uint256.Int { return model.Units(n) }

func kinds(events []model.Event) []model.EventKind {
	res := make([]model.EventKind, 0, len(events))
	for _, e := range events {
		res = append(res, e.Kind)
	}
	return res
}

func TestDepositAndWithdrawMoveExactAmounts(t *testing.T) {
	l := newTestLedger(t, 0, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(10))
	_, err := l.svc.CreateGoal(ctx, alice, units(5), start.Add(30*24*time.Hour))
	require.NoError(t, err)

	_, err = l.svc.Deposit(ctx, alice, units(1))
	require.NoError(t, err)
	assert.Equal(t, units(9), l.repo.wallet(alice))
	assert.Equal(t, units(1), l.repo.wallet(model.CustodyAccount))

	half := new(uint256.Int).Div(units(1), uint256.NewInt(2))
	res, err := l.svc.Withdraw(ctx, alice, half)
	require.NoError(t, err)
	assert.True(t, res.Penalty.IsZero())
	assert.Equal(t, new(uint256.Int).Add(units(9), half), l.repo.wallet(alice))
	assert.Equal(t, half, l.repo.wallet(model.CustodyAccount))

	total, err := l.svc.GetTotalDeposits(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, half, total)
}

func TestDepositCompletesOnlyWhenTargetReached(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(1000))
	_, err := l.svc.CreateGoal(ctx, alice, units(500), start.Add(time.Hour))
	require.NoError(t, err)

	g, err := l.svc.Deposit(ctx, alice, units(100))
	require.NoError(t, err)
	assert.False(t, g.IsCompleted)

	g, err = l.svc.Deposit(ctx, alice, units(400))
	require.NoError(t, err)
	assert.True(t, g.IsCompleted)

	_, err = l.svc.Deposit(ctx, alice, units(1))
	require.NoError(t, err)

	completed := 0
	for _, e := range l.repo.events() {
		if e.Kind == model.EventGoalCompleted {
			completed++
			assert.Equal(t, units(500).Dec(), e.Data["final_amount"])
		}
	}
	assert.Equal(t, 1, completed)

	progress, err := l.svc.GetProgress(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), progress)
}

func TestDepositEventsShareCallID(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(5))
	_, err := l.svc.CreateGoal(ctx, alice, units(1), start.Add(time.Hour))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(1))
	require.NoError(t, err)

	events := l.repo.events()
	require.Equal(t, []model.EventKind{model.EventGoalCreated, model.EventDepositMade, model.EventGoalCompleted}, kinds(events))
	assert.Equal(t, events[1].CallID, events[2].CallID)
	assert.NotEqual(t, events[0].CallID, events[1].CallID)
	assert.Less(t, events[1].ID, events[2].ID)
}

func TestCreateGoalValidation(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	_, err := l.svc.CreateGoal(ctx, alice, new(uint256.Int), start.Add(time.Hour))
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = l.svc.CreateGoal(ctx, alice, units(1), start)
	assert.ErrorIs(t, err, model.ErrDeadlineInPast)

	// Срок внутри текущей секунды совпал бы со стартом цели.
	l.advance(200 * time.Millisecond)
	_, err = l.svc.CreateGoal(ctx, alice, units(1), start.Add(700*time.Millisecond))
	assert.ErrorIs(t, err, model.ErrDeadlineInPast)

	g, err := l.svc.CreateGoal(ctx, alice, units(1), start.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, g.EndTime.After(g.StartTime))
	assert.Equal(t, start, g.StartTime)

	_, err = l.svc.CreateGoal(ctx, alice, units(2), start.Add(time.Hour))
	assert.ErrorIs(t, err, model.ErrGoalAlreadyActive)
}

func TestGoalCanBeRecreatedAfterFullWithdrawal(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(1))
	_, err := l.svc.CreateGoal(ctx, alice, units(1), start.Add(time.Hour))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(1))
	require.NoError(t, err)

	_, err = l.svc.Withdraw(ctx, alice, units(1))
	require.NoError(t, err)

	_, err = l.svc.Deposit(ctx, alice, units(1))
	assert.ErrorIs(t, err, model.ErrGoalAlreadyWithdrawn)

	interest, err := l.svc.GetEstimatedInterest(ctx, alice)
	require.NoError(t, err)
	assert.True(t, interest.IsZero())

	g, err := l.svc.CreateGoal(ctx, alice, units(3), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, g.CurrentAmount.IsZero())
}

func TestQueriesWithoutGoal(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	_, err := l.svc.GetProgress(ctx, alice)
	assert.ErrorIs(t, err, model.ErrNoActiveGoal)
	_, err = l.svc.GetTotalDeposits(ctx, alice)
	assert.ErrorIs(t, err, model.ErrNoActiveGoal)
	_, err = l.svc.Deposit(ctx, alice, units(1))
	assert.ErrorIs(t, err, model.ErrNoActiveGoal)
	_, err = l.svc.Withdraw(ctx, alice, units(1))
	assert.ErrorIs(t, err, model.ErrNoActiveGoal)
}

func TestFailedDepositLeavesNoTrace(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(1))
	_, err := l.svc.CreateGoal(ctx, alice, units(5), start.Add(time.Hour))
	require.NoError(t, err)
	before := len(l.repo.events())

	_, err = l.svc.Deposit(ctx, alice, units(2))
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	assert.Len(t, l.repo.events(), before)
	assert.Equal(t, units(1), l.repo.wallet(alice))
	total, err := l.svc.GetTotalDeposits(ctx, alice)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	stats, err := l.svc.GetAvailableMilestones(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestCommitFailureDiscardsWholeCall(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(1))
	_, err := l.svc.CreateGoal(ctx, alice, units(5), start.Add(time.Hour))
	require.NoError(t, err)
	before := len(l.repo.events())

	l.repo.failTx = errors.New("commit failed")
	_, err = l.svc.Deposit(ctx, alice, units(1))
	require.Error(t, err)
	l.repo.failTx = nil

	assert.Len(t, l.repo.events(), before)
	assert.Equal(t, units(1), l.repo.wallet(alice))
	assert.True(t, l.repo.wallet(model.CustodyAccount).IsZero())
}

func TestWithdrawPenalty(t *testing.T) {
	ctx := context.Background()
	deadline := start.Add(100 * 24 * time.Hour)

	tests := []struct {
		name        string
		deposit     *uint256.Int
		target      *uint256.Int
		after       time.Duration
		wantPenalty *uint256.Int
	}{
		{
			name:        "at start full penalty",
			deposit:     units(10),
			target:      units(100),
			after:       0,
			wantPenalty: units(1),
		},
		{
			name:        "halfway half penalty",
			deposit:     units(10),
			target:      units(100),
			after:       50 * 24 * time.Hour,
			wantPenalty: new(uint256.Int).Div(units(1), uint256.NewInt(2)),
		},
		{
			name:        "at deadline no penalty",
			deposit:     units(10),
			target:      units(100),
			after:       100 * 24 * time.Hour,
			wantPenalty: new(uint256.Int),
		},
		{
			name:        "completed goal no penalty",
			deposit:     units(10),
			target:      units(10),
			after:       0,
			wantPenalty: new(uint256.Int),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t, 1000, model.PayoutProportional)
			l.fund(t, alice, tt.deposit)
			_, err := l.svc.CreateGoal(ctx, alice, tt.target, deadline)
			require.NoError(t, err)
			_, err = l.svc.Deposit(ctx, alice, tt.deposit)
			require.NoError(t, err)

			l.advance(tt.after)
			res, err := l.svc.Withdraw(ctx, alice, tt.deposit)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPenalty, res.Penalty)
			assert.Equal(t, new(uint256.Int).Sub(tt.deposit, tt.wantPenalty), res.Payout)
			assert.Equal(t, res.Payout, l.repo.wallet(alice))
			assert.Equal(t, tt.wantPenalty, l.repo.wallet(model.ReserveAccount))
			assert.True(t, l.repo.wallet(model.CustodyAccount).IsZero())
		})
	}
}

func TestWithdrawMoreThanBalance(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(1))
	_, err := l.svc.CreateGoal(ctx, alice, units(5), start.Add(time.Hour))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(1))
	require.NoError(t, err)

	_, err = l.svc.Withdraw(ctx, alice, units(2))
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	_, err = l.svc.Withdraw(ctx, alice, new(uint256.Int))
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestInterestCheckpointOnDeposit(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()
	halfYear := interestYear / 2

	l.fund(t, alice, units(200))
	_, err := l.svc.CreateGoal(ctx, alice, units(1000), start.Add(2*interestYear))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(100))
	require.NoError(t, err)

	l.advance(halfYear)
	_, err = l.svc.Deposit(ctx, alice, units(100))
	require.NoError(t, err)

	l.advance(halfYear)
	est, err := l.svc.GetEstimatedInterest(ctx, alice)
	require.NoError(t, err)
	// 100 * 5% * 0.5 + 200 * 5% * 0.5
	want, _ := uint256.FromDecimal("7500000000000000000")
	assert.Equal(t, want, est)
}

var interestYear = 365 * 24 * time.Hour

func TestCreditInterestCapsProgress(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(100))
	l.fund(t, model.ReserveAccount, units(10))
	_, err := l.svc.CreateGoal(ctx, alice, units(100), start.Add(2*interestYear))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(100))
	require.NoError(t, err)

	l.advance(interestYear)
	credited, err := l.svc.CreditInterest(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, units(5), credited)

	total, err := l.svc.GetTotalDeposits(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, units(105), total)

	progress, err := l.svc.GetProgress(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), progress)

	assert.Equal(t, units(5), l.repo.wallet(model.ReserveAccount))
	assert.Equal(t, units(105), l.repo.wallet(model.CustodyAccount))

	again, err := l.svc.CreditInterest(ctx, alice)
	require.NoError(t, err)
	assert.True(t, again.IsZero())
}

func TestCreditInterestNeedsReserve(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(100))
	_, err := l.svc.CreateGoal(ctx, alice, units(1000), start.Add(2*interestYear))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(100))
	require.NoError(t, err)

	l.advance(interestYear)
	_, err = l.svc.CreditInterest(ctx, alice)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	est, err := l.svc.GetEstimatedInterest(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, units(5), est)
}

func TestSetInterestRate(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	rate, err := l.svc.GetCurrentInterestRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), rate)

	assert.ErrorIs(t, l.svc.SetInterestRate(ctx, 100_001), model.ErrInvalidRate)

	require.NoError(t, l.svc.SetInterestRate(ctx, 700))
	require.NoError(t, l.svc.SetInterestRate(ctx, 700))

	rate, err = l.svc.GetCurrentInterestRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), rate)

	events := l.repo.events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventInterestRateChanged, events[0].Kind)
	assert.Equal(t, "500", events[0].Data["previous_bps"])
}

func TestMilestoneClaimExactlyOnce(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(200))
	_, err := l.svc.CreateGoal(ctx, alice, units(1000), start.Add(time.Hour))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(150))
	require.NoError(t, err)

	available, err := l.svc.GetAvailableMilestones(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, available)

	reward, err := l.svc.ClaimReward(ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, units(10), reward)

	_, err = l.svc.ClaimReward(ctx, alice, 0)
	assert.ErrorIs(t, err, model.ErrAlreadyClaimed)

	_, err = l.svc.ClaimReward(ctx, alice, 1)
	assert.ErrorIs(t, err, model.ErrMilestoneNotEligible)
	_, err = l.svc.ClaimReward(ctx, alice, 42)
	assert.ErrorIs(t, err, model.ErrMilestoneNotEligible)

	balance, err := l.svc.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, units(10), balance.Tokens)

	available, err = l.svc.GetAvailableMilestones(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, available)

	claimed := 0
	for _, e := range l.repo.events() {
		if e.Kind == model.EventMilestoneClaimed {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestMilestoneProgressSurvivesWithdrawal(t *testing.T) {
	l := newTestLedger(t, 0, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(100))
	_, err := l.svc.CreateGoal(ctx, alice, units(1000), start.Add(time.Hour))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(100))
	require.NoError(t, err)
	_, err = l.svc.Withdraw(ctx, alice, units(100))
	require.NoError(t, err)

	available, err := l.svc.GetAvailableMilestones(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, available)
}

func TestBadges(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	available, err := l.svc.GetAvailableBadges(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, available)

	l.fund(t, alice, units(2))
	_, err = l.svc.CreateGoal(ctx, alice, units(2), start.Add(time.Hour))
	require.NoError(t, err)
	_, err = l.svc.Deposit(ctx, alice, units(1))
	require.NoError(t, err)

	available, err = l.svc.GetAvailableBadges(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, available)

	assert.ErrorIs(t, l.svc.ClaimBadge(ctx, alice, 2), model.ErrBadgeNotEligible)
	assert.ErrorIs(t, l.svc.ClaimBadge(ctx, alice, 99), model.ErrBadgeNotEligible)

	_, err = l.svc.Deposit(ctx, alice, units(1))
	require.NoError(t, err)

	available, err = l.svc.GetAvailableBadges(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, available)

	require.NoError(t, l.svc.ClaimBadge(ctx, alice, 2))
	assert.ErrorIs(t, l.svc.ClaimBadge(ctx, alice, 2), model.ErrAlreadyOwned)

	available, err = l.svc.GetAvailableBadges(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, available)

	balance, err := l.svc.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, balance.Badges)
	assert.True(t, balance.Tokens.IsZero())

	b, err := l.svc.GetBadgeDetails(2)
	require.NoError(t, err)
	assert.Equal(t, model.BadgeGoalsCompleted, b.Kind)
	assert.NotEmpty(t, b.MetadataURI)

	_, err = l.svc.GetBadgeDetails(99)
	assert.ErrorIs(t, err, model.ErrBadgeNotFound)
}

func TestCreatePodValidation(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	_, err := l.svc.CreatePod(ctx, alice, "trip", new(uint256.Int), []string{bob})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = l.svc.CreatePod(ctx, alice, "trip", units(1), nil)
	assert.ErrorIs(t, err, model.ErrEmptyMembership)

	_, err = l.svc.CreatePod(ctx, alice, "trip", units(1), []string{"bob"})
	assert.ErrorIs(t, err, model.ErrInvalidAccount)

	pod, err := l.svc.CreatePod(ctx, alice, "trip", units(1), []string{bob, alice, bob, carol})
	require.NoError(t, err)

	members := make([]string, 0, len(pod.Members))
	for _, m := range pod.Members {
		members = append(members, m.Account)
	}
	assert.Equal(t, []string{alice, bob, carol}, members)

	events := l.repo.events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPodCreated, events[0].Kind)
	require.NotNil(t, events[0].PodID)
	assert.Equal(t, pod.ID, *events[0].PodID)
}

func TestContributeKeepsPodBalanced(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	for _, a := range []string{alice, bob, carol} {
		l.fund(t, a, units(100))
	}
	pod, err := l.svc.CreatePod(ctx, alice, "house", units(60), []string{bob})
	require.NoError(t, err)

	_, err = l.svc.Contribute(ctx, pod.ID, carol, units(1))
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = l.svc.Contribute(ctx, pod.ID+1, alice, units(1))
	assert.ErrorIs(t, err, model.ErrPodNotFound)
	_, err = l.svc.Contribute(ctx, pod.ID, alice, new(uint256.Int))
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	steps := []struct {
		member string
		amount uint64
	}{
		{alice, 10},
		{bob, 25},
		{alice, 20},
	}
	for _, s := range steps {
		p, err := l.svc.Contribute(ctx, pod.ID, s.member, units(s.amount))
		require.NoError(t, err)

		sum := new(uint256.Int)
		for _, m := range p.Members {
			sum.Add(sum, m.Contribution)
		}
		assert.Equal(t, p.CurrentAmount, sum)
	}

	p, err := l.svc.GetPod(ctx, pod.ID)
	require.NoError(t, err)
	assert.False(t, p.IsCompleted)
	assert.Equal(t, units(55), p.CurrentAmount)
	assert.Equal(t, units(55), l.repo.wallet(model.CustodyAccount))
	assert.Equal(t, units(70), l.repo.wallet(alice))
}

func TestPodLifecycle(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	l.fund(t, alice, units(100))
	l.fund(t, bob, units(100))
	pod, err := l.svc.CreatePod(ctx, alice, "bike", units(40), []string{bob})
	require.NoError(t, err)

	_, err = l.svc.Contribute(ctx, pod.ID, alice, units(10))
	require.NoError(t, err)

	_, err = l.svc.SettlePod(ctx, pod.ID, alice)
	assert.ErrorIs(t, err, model.ErrPodNotCompleted)

	p, err := l.svc.Contribute(ctx, pod.ID, bob, units(30))
	require.NoError(t, err)
	assert.True(t, p.IsCompleted)

	_, err = l.svc.SettlePod(ctx, pod.ID, carol)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	payouts, err := l.svc.SettlePod(ctx, pod.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, []model.Payout{
		{Account: alice, Amount: units(10)},
		{Account: bob, Amount: units(30)},
	}, payouts)
	assert.Equal(t, units(100), l.repo.wallet(alice))
	assert.Equal(t, units(100), l.repo.wallet(bob))
	assert.True(t, l.repo.wallet(model.CustodyAccount).IsZero())

	_, err = l.svc.SettlePod(ctx, pod.ID, alice)
	assert.ErrorIs(t, err, model.ErrPodSettled)
	_, err = l.svc.Contribute(ctx, pod.ID, alice, units(1))
	assert.ErrorIs(t, err, model.ErrPodSettled)

	for _, a := range []string{alice, bob} {
		badges, err := l.svc.GetAvailableBadges(ctx, a)
		require.NoError(t, err)
		assert.Contains(t, badges, 2, "pod completion counts for %s", a)
	}

	assert.Equal(t, []model.EventKind{
		model.EventPodCreated,
		model.EventContributionMade,
		model.EventContributionMade,
		model.EventGoalCompleted,
		model.EventPodSettled,
	}, kinds(l.repo.events()))
}

func TestComputePayouts(t *testing.T) {
	pod := &model.Pod{
		CurrentAmount: uint256.NewInt(10),
		Members: []model.PodMember{
			{Account: alice, Contribution: uint256.NewInt(7)},
			{Account: bob, Contribution: uint256.NewInt(2)},
			{Account: carol, Contribution: uint256.NewInt(1)},
		},
	}

	tests := []struct {
		policy model.PayoutPolicy
		want   []uint64
	}{
		{model.PayoutEqual, []uint64{3, 3, 4}},
		{model.PayoutProportional, []uint64{7, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			payouts, err := computePayouts(pod, tt.policy)
			require.NoError(t, err)
			require.Len(t, payouts, len(tt.want))

			sum := new(uint256.Int)
			for i, p := range payouts {
				assert.Equal(t, tt.want[i], p.Amount.Uint64(), "payout %d", i)
				sum.Add(sum, p.Amount)
			}
			assert.Equal(t, pod.CurrentAmount, sum)
		})
	}

	_, err := computePayouts(pod, model.PayoutPolicy("lottery"))
	assert.Error(t, err)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	mixed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	account, err := l.svc.RegisterUser(ctx, mixed, "secret")
	require.NoError(t, err)
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", account)

	_, err = l.svc.RegisterUser(ctx, account, "other")
	assert.ErrorIs(t, err, repository.ErrUserExists)

	_, err = l.svc.RegisterUser(ctx, "alice", "secret")
	assert.ErrorIs(t, err, model.ErrInvalidAccount)

	got, err := l.svc.AuthenticateUser(ctx, mixed, "secret")
	require.NoError(t, err)
	assert.Equal(t, account, got)

	_, err = l.svc.AuthenticateUser(ctx, account, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = l.svc.AuthenticateUser(ctx, bob, "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestListEventsPaging(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.svc.SetInterestRate(ctx, uint64(600+i)))
	}

	all, err := l.svc.ListEvents(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	page, err := l.svc.ListEvents(ctx, all[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[2].ID, page[0].ID)
	assert.Equal(t, all[3].ID, page[1].ID)
}

func TestFundWalletValidation(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx := context.Background()

	_, err := l.svc.FundWallet(ctx, "nobody", units(1))
	assert.ErrorIs(t, err, model.ErrInvalidAccount)
	_, err = l.svc.FundWallet(ctx, alice, new(uint256.Int))
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	balance, err := l.svc.FundWallet(ctx, alice, units(3))
	require.NoError(t, err)
	assert.Equal(t, units(3), balance)

	got, err := l.svc.GetWallet(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, units(3), got)
}

func TestStartRateUpdatesWithoutOracle(t *testing.T) {
	l := newTestLedger(t, 1000, model.PayoutProportional)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.svc.StartRateUpdates(ctx)
	assert.Empty(t, l.repo.events())
}
