package model

import "errors"

// Ошибки бизнес-логики. Любая из них прерывает вызов целиком: транзакция откатывается.
var (
	// ErrInvalidAmount возвращается для нулевой или некорректной суммы.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrDeadlineInPast возвращается, если срок цели не в будущем.
	ErrDeadlineInPast = errors.New("deadline in past")
	// ErrGoalAlreadyActive возвращается при создании цели, пока предыдущая не закрыта.
	ErrGoalAlreadyActive = errors.New("goal already active")
	// ErrNoActiveGoal возвращается, если у аккаунта нет цели.
	ErrNoActiveGoal = errors.New("no active goal")
	// ErrGoalAlreadyWithdrawn возвращается для операций над выведенной целью.
	ErrGoalAlreadyWithdrawn = errors.New("goal already withdrawn")
	// ErrInsufficientBalance возвращается при попытке списать больше, чем есть.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnauthorized возвращается при обращении к поду не его участником.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyMembership возвращается при создании пода без участников.
	ErrEmptyMembership = errors.New("empty membership")
	// ErrMilestoneNotEligible возвращается, если порог этапа не достигнут.
	ErrMilestoneNotEligible = errors.New("milestone not eligible")
	// ErrAlreadyClaimed возвращается при повторном получении награды за этап.
	ErrAlreadyClaimed = errors.New("already claimed")
	// ErrBadgeNotEligible возвращается, если требование бейджа не выполнено.
	ErrBadgeNotEligible = errors.New("badge not eligible")
	// ErrAlreadyOwned возвращается, если бейдж уже принадлежит аккаунту.
	ErrAlreadyOwned = errors.New("badge already owned")
	// ErrArithmeticOverflow возвращается при переполнении в расчётах.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidAccount возвращается для некорректного адреса аккаунта.
	ErrInvalidAccount = errors.New("invalid account")
	ErrPodNotFound    = errors.New("pod not found")
	ErrPodSettled     = errors.New("pod already settled")
	// ErrPodNotCompleted возвращается при попытке рассчитать под до достижения цели.
	ErrPodNotCompleted = errors.New("pod not completed")
	ErrBadgeNotFound   = errors.New("badge not found")
	// ErrInvalidRate возвращается для процентной ставки вне допустимого диапазона.
	ErrInvalidRate = errors.New("invalid interest rate")
)
