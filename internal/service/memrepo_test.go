package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/mmeshcher/goalsaver/internal/model"
	"github.com/mmeshcher/goalsaver/internal/repository"
)

// memState — снимок хранилища. InTx работает с копией и подменяет состояние только при успехе.
type memState struct {
	goals       map[string][]*model.Goal
	nextGoalID  int64
	pods        map[int64]*model.Pod
	nextPodID   int64
	wallets     map[string]*uint256.Int
	tokens      map[string]*uint256.Int
	stats       map[string]*model.AccountStats
	milestones  map[string][]int
	badges      map[string][]int
	rate        *uint64
	events      []model.Event
	nextEventID int64
}

func newMemState() *memState {
	return &memState{
		goals:      map[string][]*model.Goal{},
		pods:       map[int64]*model.Pod{},
		wallets:    map[string]*uint256.Int{},
		tokens:     map[string]*uint256.Int{},
		stats:      map[string]*model.AccountStats{},
		milestones: map[string][]int{},
		badges:     map[string][]int{},
	}
}

func (s *memState) clone() *memState {
	c := *s
	c.goals = make(map[string][]*model.Goal, len(s.goals))
	for k, gs := range s.goals {
		for _, g := range gs {
			c.goals[k] = append(c.goals[k], g.Clone())
		}
	}
	c.pods = make(map[int64]*model.Pod, len(s.pods))
	for k, p := range s.pods {
		c.pods[k] = p.Clone()
	}
	c.wallets = cloneAmounts(s.wallets)
	c.tokens = cloneAmounts(s.tokens)
	c.stats = make(map[string]*model.AccountStats, len(s.stats))
	for k, st := range s.stats {
		cp := *st
		cp.TotalSaved = new(uint256.Int).Set(st.TotalSaved)
		c.stats[k] = &cp
	}
	c.milestones = make(map[string][]int, len(s.milestones))
	for k, v := range s.milestones {
		c.milestones[k] = slices.Clone(v)
	}
	c.badges = make(map[string][]int, len(s.badges))
	for k, v := range s.badges {
		c.badges[k] = slices.Clone(v)
	}
	if s.rate != nil {
		r := *s.rate
		c.rate = &r
	}
	c.events = slices.Clone(s.events)
	return &c
}

func cloneAmounts(m map[string]*uint256.Int) map[string]*uint256.Int {
	c := make(map[string]*uint256.Int, len(m))
	for k, v := range m {
		c[k] = new(uint256.Int).Set(v)
	}
	return c
}

type memRepo struct {
	mu    sync.Mutex
	state *memState
	users map[string]*model.User
	// failTx, если задан, возвращается из InTx после выполнения fn.
	failTx error
}

func newMemRepo() *memRepo {
	return &memRepo{state: newMemState(), users: map[string]*model.User{}}
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	if r.failTx != nil {
		return r.failTx
	}
	r.state = work
	return nil
}

func (r *memRepo) CreateUser(ctx context.Context, account string, passwordHash []byte) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[account]; ok {
		return 0, fmt.Errorf("%w: %s", repository.ErrUserExists, account)
	}
	id := int64(len(r.users) + 1)
	r.users[account] = &model.User{ID: id, Account: account, PasswordHash: passwordHash, CreatedAt: time.Now()}
	return id, nil
}

func (r *memRepo) GetUserByAccount(ctx context.Context, account string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[account]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (r *memRepo) ListEvents(ctx context.Context, afterID int64, limit int) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Event
	for _, e := range r.state.events {
		if e.ID > afterID && len(res) < limit {
			res = append(res, e)
		}
	}
	return res, nil
}

func (r *memRepo) wallet(account string) *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.state.wallets[account]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (r *memRepo) events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.events)
}

type memTx struct {
	s *memState
}

func (t *memTx) LatestGoal(ctx context.Context, owner string) (*model.Goal, error) {
	gs := t.s.goals[owner]
	if len(gs) == 0 {
		return nil, model.ErrNoActiveGoal
	}
	return gs[len(gs)-1].Clone(), nil
}

func (t *memTx) InsertGoal(ctx context.Context, g *model.Goal) (int64, error) {
	for _, existing := range t.s.goals[g.Owner] {
		if !existing.Resolved() {
			return 0, model.ErrGoalAlreadyActive
		}
	}
	t.s.nextGoalID++
	stored := g.Clone()
	stored.ID = t.s.nextGoalID
	t.s.goals[g.Owner] = append(t.s.goals[g.Owner], stored)
	return stored.ID, nil
}

func (t *memTx) UpdateGoal(ctx context.Context, g *model.Goal) error {
	gs := t.s.goals[g.Owner]
	for i := range gs {
		if gs[i].ID == g.ID {
			gs[i] = g.Clone()
			return nil
		}
	}
	return fmt.Errorf("goal %d not found", g.ID)
}

func (t *memTx) GetPod(ctx context.Context, id int64) (*model.Pod, error) {
	p, ok := t.s.pods[id]
	if !ok {
		return nil, model.ErrPodNotFound
	}
	return p.Clone(), nil
}

func (t *memTx) InsertPod(ctx context.Context, p *model.Pod) (int64, error) {
	t.s.nextPodID++
	stored := p.Clone()
	stored.ID = t.s.nextPodID
	t.s.pods[stored.ID] = stored
	return stored.ID, nil
}

func (t *memTx) UpdatePod(ctx context.Context, p *model.Pod) error {
	if _, ok := t.s.pods[p.ID]; !ok {
		return model.ErrPodNotFound
	}
	t.s.pods[p.ID] = p.Clone()
	return nil
}

func amountOf(m map[string]*uint256.Int, account string) *uint256.Int {
	if v, ok := m[account]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (t *memTx) WalletBalance(ctx context.Context, account string) (*uint256.Int, error) {
	return amountOf(t.s.wallets, account), nil
}

func (t *memTx) SetWalletBalance(ctx context.Context, account string, balance *uint256.Int) error {
	t.s.wallets[account] = new(uint256.Int).Set(balance)
	return nil
}

func (t *memTx) TokenBalance(ctx context.Context, account string) (*uint256.Int, error) {
	return amountOf(t.s.tokens, account), nil
}

func (t *memTx) SetTokenBalance(ctx context.Context, account string, balance *uint256.Int) error {
	t.s.tokens[account] = new(uint256.Int).Set(balance)
	return nil
}

func (t *memTx) AccountStats(ctx context.Context, account string) (*model.AccountStats, error) {
	st, ok := t.s.stats[account]
	if !ok {
		return &model.AccountStats{Account: account, TotalSaved: new(uint256.Int)}, nil
	}
	cp := *st
	cp.TotalSaved = new(uint256.Int).Set(st.TotalSaved)
	return &cp, nil
}

func (t *memTx) SaveAccountStats(ctx context.Context, s *model.AccountStats) error {
	cp := *s
	cp.TotalSaved = new(uint256.Int).Set(s.TotalSaved)
	t.s.stats[s.Account] = &cp
	return nil
}

func (t *memTx) ClaimedMilestones(ctx context.Context, account string) ([]int, error) {
	return slices.Sorted(slices.Values(t.s.milestones[account])), nil
}

func (t *memTx) InsertMilestoneClaim(ctx context.Context, account string, index int) error {
	if slices.Contains(t.s.milestones[account], index) {
		return fmt.Errorf("%w: milestone %d", model.ErrAlreadyClaimed, index)
	}
	t.s.milestones[account] = append(t.s.milestones[account], index)
	return nil
}

func (t *memTx) OwnedBadges(ctx context.Context, account string) ([]int, error) {
	return slices.Sorted(slices.Values(t.s.badges[account])), nil
}

func (t *memTx) InsertBadgeOwner(ctx context.Context, account string, badgeID int) error {
	if slices.Contains(t.s.badges[account], badgeID) {
		return fmt.Errorf("%w: badge %d", model.ErrAlreadyOwned, badgeID)
	}
	t.s.badges[account] = append(t.s.badges[account], badgeID)
	return nil
}

func (t *memTx) InterestRate(ctx context.Context) (uint64, bool, error) {
	if t.s.rate == nil {
		return 0, false, nil
	}
	return *t.s.rate, true, nil
}

func (t *memTx) SetInterestRate(ctx context.Context, rateBps uint64) error {
	t.s.rate = &rateBps
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, e *model.Event) (int64, error) {
	t.s.nextEventID++
	stored := *e
	stored.ID = t.s.nextEventID
	stored.Data = maps.Clone(e.Data)
	t.s.events = append(t.s.events, stored)
	return stored.ID, nil
}
