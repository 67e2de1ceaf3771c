// Package model содержит доменные сущности сервиса накопительных целей.
package model

import (
	"time"

	"github.com/holiman/uint256"
)

// Служебные кошельки леджера. Адреса не проходят валидацию аккаунта и не могут совпасть с пользовательскими.
const (
	// CustodyAccount хранит средства, заблокированные в целях и подах.
	CustodyAccount = "ledger:custody"
	// ReserveAccount хранит резерв для выплаты процентов, сюда же поступают штрафы.
	ReserveAccount = "ledger:reserve"
)

// User представляет зарегистрированного владельца аккаунта.
type User struct {
	ID           int64
	Account      string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Goal описывает индивидуальную накопительную цель.
type Goal struct {
	ID            int64
	Owner         string
	TargetAmount  *uint256.Int
	CurrentAmount *uint256.Int
	StartTime     time.Time
	EndTime       time.Time
	// AccruedAt — момент, с которого считаются ещё не зачисленные проценты.
	AccruedAt time.Time
	// PendingInterest — проценты, начисленные до последнего изменения баланса, но ещё не зачисленные.
	PendingInterest *uint256.Int
	IsCompleted     bool
	IsWithdrawn     bool
}

// Resolved сообщает, что цель закрыта и владелец может создать новую.
func (g *Goal) Resolved() bool {
	return g.IsWithdrawn
}

// Clone возвращает глубокую копию цели.
func (g *Goal) Clone() *Goal {
	c := *g
	c.TargetAmount = new(uint256.Int).Set(g.TargetAmount)
	c.CurrentAmount = new(uint256.Int).Set(g.CurrentAmount)
	c.PendingInterest = new(uint256.Int).Set(g.PendingInterest)
	return &c
}

// PayoutPolicy задаёт правило распределения накоплений пода между участниками.
type PayoutPolicy string

const (
	PayoutProportional PayoutPolicy = "proportional"
	PayoutEqual        PayoutPolicy = "equal"
)

// PodMember описывает участника пода и его вклад.
type PodMember struct {
	Account      string
	Contribution *uint256.Int
}

// Pod описывает групповую накопительную цель.
type Pod struct {
	ID            int64
	Name          string
	Creator       string
	TargetAmount  *uint256.Int
	CurrentAmount *uint256.Int
	// Members упорядочены по порядку вступления, создатель первый.
	Members     []PodMember
	IsCompleted bool
	IsSettled   bool
	CreatedAt   time.Time
}

// Member возвращает участника пода по адресу.
func (p *Pod) Member(account string) (*PodMember, bool) {
	for i := range p.Members {
		if p.Members[i].Account == account {
			return &p.Members[i], true
		}
	}
	return nil, false
}

// Clone возвращает глубокую копию пода.
func (p *Pod) Clone() *Pod {
	c := *p
	c.TargetAmount = new(uint256.Int).Set(p.TargetAmount)
	c.CurrentAmount = new(uint256.Int).Set(p.CurrentAmount)
	c.Members = make([]PodMember, len(p.Members))
	for i, m := range p.Members {
		c.Members[i] = PodMember{
			Account:      m.Account,
			Contribution: new(uint256.Int).Set(m.Contribution),
		}
	}
	return &c
}

// Payout описывает выплату участнику при расчёте пода.
type Payout struct {
	Account string
	Amount  *uint256.Int
}

// Milestone описывает порог накоплений, открывающий награду в токенах.
type Milestone struct {
	Index        int
	Threshold    *uint256.Int
	RewardAmount *uint256.Int
}

// BadgeKind определяет, по какой метрике проверяется требование бейджа.
type BadgeKind string

const (
	BadgeTotalSaved     BadgeKind = "total_saved"
	BadgeGoalsCompleted BadgeKind = "goals_completed"
)

// Badge описывает невзаимозаменяемый знак достижения.
type Badge struct {
	ID          int
	Kind        BadgeKind
	Requirement *uint256.Int
	MetadataURI string
}

// AccountStats содержит накопительный прогресс аккаунта для наград.
type AccountStats struct {
	Account        string
	TotalSaved     *uint256.Int
	GoalsCompleted uint64
}

// RewardBalance содержит баланс токенов награды и число бейджей аккаунта.
type RewardBalance struct {
	Tokens *uint256.Int
	Badges int
}

// Withdrawal описывает результат вывода средств из цели.
type Withdrawal struct {
	Amount  *uint256.Int
	Penalty *uint256.Int
	Payout  *uint256.Int
}
