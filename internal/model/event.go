package model

import "time"

// EventKind — тип записи журнала событий.
type EventKind string

const (
	EventGoalCreated         EventKind = "GoalCreated"
	EventDepositMade         EventKind = "DepositMade"
	EventWithdrawalMade      EventKind = "WithdrawalMade"
	EventGoalCompleted       EventKind = "GoalCompleted"
	EventInterestEarned      EventKind = "InterestEarned"
	EventPodCreated          EventKind = "PodCreated"
	EventContributionMade    EventKind = "ContributionMade"
	EventPodSettled          EventKind = "PodSettled"
	EventMilestoneClaimed    EventKind = "MilestoneClaimed"
	EventBadgeClaimed        EventKind = "BadgeClaimed"
	EventInterestRateChanged EventKind = "InterestRateChanged"
)

// Event — запись журнала событий. Журнал только дополняется.
type Event struct {
	ID int64 `json:"id"`
	// CallID общий для всех событий одного вызова.
	CallID    string            `json:"call_id"`
	Kind      EventKind         `json:"kind"`
	Account   string            `json:"account"`
	PodID     *int64            `json:"pod_id,omitempty"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}
