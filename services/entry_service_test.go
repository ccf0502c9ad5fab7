package services

import (
	"context"
	"testing"

	"github.com/Dosada05/knockout-system/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lateEnter(f *engineFixture, name string, force bool) (*LateEntryOutcome, error) {
	return f.entry.LateEntry(context.Background(), organizerID, f.tournament.ID, LateEntryInput{Name: name, Force: force})
}

func TestLateEntryPreconditions(t *testing.T) {
	t.Run("requires running tournament", func(t *testing.T) {
		f := newEngineFixture(4, withStatus(models.StatusOpen))
		_, err := lateEnter(f, "Newcomer", false)
		assert.ErrorIs(t, err, ErrTournamentNotRunning)
	})

	t.Run("requires allow_late_entry", func(t *testing.T) {
		f := newEngineFixture(4)
		f.tournament.AllowLateEntry = false
		_, err := lateEnter(f, "Newcomer", false)
		assert.ErrorIs(t, err, ErrLateEntryDisabled)
	})

	t.Run("requires a name", func(t *testing.T) {
		f := newEngineFixture(4)
		_, err := lateEnter(f, "   ", false)
		assert.ErrorIs(t, err, ErrPlayerNameRequired)
	})

	t.Run("closes permanently once round 1 is complete", func(t *testing.T) {
		f := newEngineFixture(4)
		_, err := f.resolve(f.round1[0].ID, f.players[0].ID)
		require.NoError(t, err)
		_, err = f.resolve(f.round1[1].ID, f.players[2].ID)
		require.NoError(t, err)

		_, err = lateEnter(f, "Too Late", false)
		assert.ErrorIs(t, err, ErrLateEntryClosed)
	})
}

func TestLateEntryDuplicateDetection(t *testing.T) {
	f := newEngineFixture(4)

	// Совпадение ловится без учёта регистра и пробелов и не имеет
	// побочных эффектов.
	outcome, err := lateEnter(f, "  player b ", false)
	require.NoError(t, err)
	assert.True(t, outcome.IsDuplicate)
	assert.Equal(t, "Player B", outcome.ExistingName)
	assert.Nil(t, outcome.Player)
	assert.True(t, f.tournament.TotalCollected.IsZero())

	// force=true сажает тёзку как нового игрока.
	outcome, err = lateEnter(f, "player b", true)
	require.NoError(t, err)
	assert.False(t, outcome.IsDuplicate)
	require.NotNil(t, outcome.Player)
	assert.False(t, f.tournament.TotalCollected.IsZero())
}

func TestLateEntryPairingOrder(t *testing.T) {
	f := newEngineFixture(5) // два полных матча + bye у Player E

	// Слотов player2=null в раздаче нет, первым делом занимается bye.
	outcome, err := lateEnter(f, "First Joiner", false)
	require.NoError(t, err)
	assert.True(t, outcome.Paired)
	bye := f.store.matches[*outcome.MatchID]
	assert.False(t, bye.IsBye)
	assert.Equal(t, f.players[4].ID, *bye.Player1ID)
	assert.Equal(t, outcome.Player.ID, *bye.Player2ID)
	assert.Nil(t, bye.WinnerID, "un-byed player no longer auto-advances")
	assert.Nil(t, bye.FinishedAt)

	// Некуда сажать: новый ожидающий матч в хвосте раунда.
	outcome, err = lateEnter(f, "Second Joiner", false)
	require.NoError(t, err)
	assert.False(t, outcome.Paired)
	pending := f.store.matches[*outcome.MatchID]
	assert.Equal(t, 4, pending.PositionInBracket)
	assert.Equal(t, outcome.Player.ID, *pending.Player1ID)
	assert.Nil(t, pending.Player2ID)
	assert.False(t, pending.IsBye)

	// Следующий вход занимает ожидающий слот.
	outcome, err = lateEnter(f, "Third Joiner", false)
	require.NoError(t, err)
	assert.True(t, outcome.Paired)
	assert.Equal(t, pending.ID, *outcome.MatchID)
	assert.Equal(t, outcome.Player.ID, *pending.Player2ID)
}

func TestLateEntryFeeAccumulatesExactly(t *testing.T) {
	f := newEngineFixture(4)
	lateFee := decimal.RequireFromString("0.01")
	f.tournament.LateEntryFee = &lateFee
	f.tournament.OrganizerPercentage = decimal.RequireFromString("10")

	for i := 0; i < 100; i++ {
		_, err := lateEnter(f, "Joiner "+string(rune('a'+i%26))+string(rune('a'+i/26)), true)
		require.NoError(t, err)
	}

	// 100 взносов по копейке складываются без потерь двоичной точности.
	assert.True(t, f.tournament.TotalCollected.Equal(decimal.RequireFromString("1.00")),
		"got %s", f.tournament.TotalCollected)
	assert.True(t, f.tournament.OrganizerAmount.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, f.tournament.PrizePool.Equal(decimal.RequireFromString("0.90")))
}

func TestLateEntryFeeFallsBackToEntryFee(t *testing.T) {
	f := newEngineFixture(5)
	f.tournament.LateEntryFee = nil

	outcome, err := lateEnter(f, "Newcomer", false)
	require.NoError(t, err)
	assert.True(t, outcome.FeeCharged.Equal(f.tournament.EntryFee))
	assert.True(t, f.tournament.TotalCollected.Equal(f.tournament.EntryFee))
}

func TestRebuyPreconditions(t *testing.T) {
	t.Run("requires allow_rebuy", func(t *testing.T) {
		f := newEngineFixture(4)
		f.tournament.AllowRebuy = false
		_, err := f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[1].ID)
		assert.ErrorIs(t, err, ErrRebuyDisabled)
	})

	t.Run("player must exist in this tournament", func(t *testing.T) {
		f := newEngineFixture(4)
		stranger := f.store.addPlayer(&models.Player{TournamentID: 999, Name: "Stranger"})
		_, err := f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, stranger.ID)
		assert.ErrorIs(t, err, ErrPlayerNotFound)
	})

	t.Run("only round-1 losers qualify", func(t *testing.T) {
		f := newEngineFixture(4)
		// Матч не сыгран: поражения ещё нет.
		_, err := f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[1].ID)
		assert.ErrorIs(t, err, ErrRebuyNotEliminated)

		// Победитель тем более не проходит.
		_, err = f.resolve(f.round1[0].ID, f.players[0].ID)
		require.NoError(t, err)
		_, err = f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[0].ID)
		assert.ErrorIs(t, err, ErrRebuyNotEliminated)
	})

	t.Run("double rebuy is rejected", func(t *testing.T) {
		f := newEngineFixture(4)
		_, err := f.resolve(f.round1[0].ID, f.players[0].ID)
		require.NoError(t, err)

		_, err = f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[1].ID)
		require.NoError(t, err)
		_, err = f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[1].ID)
		assert.ErrorIs(t, err, ErrRebuyAlreadyUsed)
	})
}

func TestRebuyCreatesAndReusesRepechageRound(t *testing.T) {
	f := newEngineFixture(4)
	_, err := f.resolve(f.round1[0].ID, f.players[0].ID)
	require.NoError(t, err)
	_, err = f.resolve(f.round1[1].ID, f.players[2].ID)
	require.NoError(t, err)

	// Первый ребай заводит утешительный раунд и ожидающий матч.
	outcome, err := f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[1].ID)
	require.NoError(t, err)
	assert.False(t, outcome.Paired)
	assert.True(t, outcome.Player.IsRebuy)
	assert.True(t, outcome.FeeCharged.Equal(f.tournament.EntryFee))

	repoRound := func() *models.Round {
		for _, r := range f.store.rounds {
			if r.IsRepechage {
				return r
			}
		}
		return nil
	}
	repechage := repoRound()
	require.NotNil(t, repechage)
	assert.Greater(t, repechage.RoundNumber, 2, "repechage number must not collide with elimination rounds")

	pending := f.store.matches[*outcome.MatchID]
	assert.Equal(t, repechage.ID, pending.RoundID)
	assert.Equal(t, f.players[1].ID, *pending.Player1ID)
	assert.Nil(t, pending.Player2ID)

	// Второй ребай переиспользует раунд и занимает свободный слот.
	outcome2, err := f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[3].ID)
	require.NoError(t, err)
	assert.True(t, outcome2.Paired)
	assert.Equal(t, pending.ID, *outcome2.MatchID)
	assert.Equal(t, f.players[3].ID, *pending.Player2ID)

	repechageRounds := 0
	for _, r := range f.store.rounds {
		if r.IsRepechage {
			repechageRounds++
		}
	}
	assert.Equal(t, 1, repechageRounds)
}

func TestRepechageResultDoesNotAdvanceBracket(t *testing.T) {
	f := newEngineFixture(4)
	_, err := f.resolve(f.round1[0].ID, f.players[0].ID)
	require.NoError(t, err)
	_, err = f.resolve(f.round1[1].ID, f.players[2].ID)
	require.NoError(t, err)

	_, err = f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[1].ID)
	require.NoError(t, err)
	outcome, err := f.entry.Rebuy(context.Background(), organizerID, f.tournament.ID, f.players[3].ID)
	require.NoError(t, err)

	finalBefore := len(f.matchesOfRound(2))
	res, err := f.resolve(*outcome.MatchID, f.players[1].ID)
	require.NoError(t, err)
	assert.False(t, res.RoundComplete, "repechage completion must not trigger the advancer")
	assert.Len(t, f.matchesOfRound(2), finalBefore)
}
