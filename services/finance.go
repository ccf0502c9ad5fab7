package services

import (
	"github.com/Dosada05/knockout-system/models"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// applyFee прибавляет взнос к сборам турнира и пересчитывает долю
// организатора и призовой фонд. Вся арифметика точная, десятичная;
// доля организатора округляется до копеек, призовой фонд — остаток,
// так что сумма двух частей всегда равна сборам.
func applyFee(t *models.Tournament, fee decimal.Decimal) {
	t.TotalCollected = t.TotalCollected.Add(fee)
	t.OrganizerAmount = t.TotalCollected.Mul(t.OrganizerPercentage).Div(oneHundred).Round(2)
	t.PrizePool = t.TotalCollected.Sub(t.OrganizerAmount)
}

// lateEntryFee — взнос позднего входа: отдельная ставка либо базовый взнос.
func lateEntryFee(t *models.Tournament) decimal.Decimal {
	if t.LateEntryFee != nil {
		return *t.LateEntryFee
	}
	return t.EntryFee
}

// rebuyFee — взнос ребая: отдельная ставка либо базовый взнос.
func rebuyFee(t *models.Tournament) decimal.Decimal {
	if t.RebuyFee != nil {
		return *t.RebuyFee
	}
	return t.EntryFee
}

// PrizeBreakdown — раскладка призового фонда по местам.
// Третье и четвёртое места получают свои проценты от фонда,
// остаток делится между чемпионом и финалистом в пропорции 2:1.
type PrizeBreakdown struct {
	PrizePool   decimal.Decimal `json:"prize_pool"`
	Champion    decimal.Decimal `json:"champion"`
	RunnerUp    decimal.Decimal `json:"runner_up"`
	ThirdPlace  decimal.Decimal `json:"third_place"`
	FourthPlace decimal.Decimal `json:"fourth_place"`
}

func computePrizeBreakdown(t *models.Tournament) PrizeBreakdown {
	third := t.PrizePool.Mul(t.ThirdPlacePercentage).Div(oneHundred).Round(2)
	fourth := t.PrizePool.Mul(t.FourthPlacePercentage).Div(oneHundred).Round(2)

	remainder := t.PrizePool.Sub(third).Sub(fourth)
	runnerUp := remainder.Div(decimal.NewFromInt(3)).Round(2)
	champion := remainder.Sub(runnerUp)

	return PrizeBreakdown{
		PrizePool:   t.PrizePool,
		Champion:    champion,
		RunnerUp:    runnerUp,
		ThirdPlace:  third,
		FourthPlace: fourth,
	}
}
