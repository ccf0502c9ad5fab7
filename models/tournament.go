package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	StatusDraft    TournamentStatus = "draft"
	StatusOpen     TournamentStatus = "open"
	StatusRunning  TournamentStatus = "running"
	StatusFinished TournamentStatus = "finished"
)

// Tournament представляет турнир на выбывание.
// Денежные поля хранятся в NUMERIC(12,2) и читаются в decimal,
// никакой плавающей точки для денег.
type Tournament struct {
	ID          int              `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	OrganizerID int              `json:"organizer_id" db:"organizer_id"`
	Status      TournamentStatus `json:"status" db:"status"`

	EntryFee     decimal.Decimal  `json:"entry_fee" db:"entry_fee"`
	LateEntryFee *decimal.Decimal `json:"late_entry_fee,omitempty" db:"late_entry_fee"`
	RebuyFee     *decimal.Decimal `json:"rebuy_fee,omitempty" db:"rebuy_fee"`

	OrganizerPercentage   decimal.Decimal `json:"organizer_percentage" db:"organizer_percentage"`
	ThirdPlacePercentage  decimal.Decimal `json:"third_place_percentage" db:"third_place_percentage"`
	FourthPlacePercentage decimal.Decimal `json:"fourth_place_percentage" db:"fourth_place_percentage"`

	TotalCollected  decimal.Decimal `json:"total_collected" db:"total_collected"`
	OrganizerAmount decimal.Decimal `json:"organizer_amount" db:"organizer_amount"`
	PrizePool       decimal.Decimal `json:"prize_pool" db:"prize_pool"`

	AllowLateEntry bool `json:"allow_late_entry" db:"allow_late_entry"`
	AllowRebuy     bool `json:"allow_rebuy" db:"allow_rebuy"`

	ChampionID *int       `json:"champion_id,omitempty" db:"champion_id"`
	RunnerUpID *int       `json:"runner_up_id,omitempty" db:"runner_up_id"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`

	BannerKey *string `json:"-" db:"banner_key"`
	BannerURL *string `json:"banner_url,omitempty" db:"-"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Organizer *User `json:"organizer,omitempty" db:"-"`
}
