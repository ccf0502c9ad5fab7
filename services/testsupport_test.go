package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Dosada05/knockout-system/brackets"
	"github.com/Dosada05/knockout-system/models"
	"github.com/Dosada05/knockout-system/repositories"
	"github.com/shopspring/decimal"
)

// Сервисы ходят в БД только через интерфейсы репозиториев, поэтому тесты
// крутятся на in-memory хранилище и транзакции-заглушке без Postgres.

type passTxRunner struct{}

func (passTxRunner) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type memStore struct {
	tournaments map[int]*models.Tournament
	rounds      map[int]*models.Round
	matches     map[int]*models.Match
	players     map[int]*models.Player
	users       map[int]*models.User
	nextID      int
	clock       time.Time
}

func newMemStore() *memStore {
	return &memStore{
		tournaments: make(map[int]*models.Tournament),
		rounds:      make(map[int]*models.Round),
		matches:     make(map[int]*models.Match),
		players:     make(map[int]*models.Player),
		users:       make(map[int]*models.User),
		clock:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

// tick выдаёт монотонно растущие отметки времени для created_at.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addTournament(t *models.Tournament) *models.Tournament {
	t.ID = s.id()
	t.CreatedAt = s.tick()
	s.tournaments[t.ID] = t
	return t
}

func (s *memStore) addRound(r *models.Round) *models.Round {
	r.ID = s.id()
	r.CreatedAt = s.tick()
	s.rounds[r.ID] = r
	return r
}

func (s *memStore) addMatch(m *models.Match) *models.Match {
	m.ID = s.id()
	m.CreatedAt = s.tick()
	s.matches[m.ID] = m
	return m
}

func (s *memStore) addPlayer(p *models.Player) *models.Player {
	p.ID = s.id()
	p.CreatedAt = s.tick()
	s.players[p.ID] = p
	return p
}

// --- TournamentRepository ---

type fakeTournamentRepo struct{ store *memStore }

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.store.addTournament(t)
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, ok := r.store.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return t, nil
}

func (r *fakeTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	out := make([]models.Tournament, 0)
	for _, t := range r.store.tournaments {
		if filter.OrganizerID != nil && t.OrganizerID != *filter.OrganizerID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) Update(ctx context.Context, t *models.Tournament) error {
	if _, ok := r.store.tournaments[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	r.store.tournaments[t.ID] = t
	return nil
}

func (r *fakeTournamentRepo) UpdateFinancials(ctx context.Context, _ repositories.SQLExecutor, id int, total, organizerAmount, prizePool decimal.Decimal) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.TotalCollected = total
	t.OrganizerAmount = organizerAmount
	t.PrizePool = prizePool
	return nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, _ repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeTournamentRepo) SetFinished(ctx context.Context, _ repositories.SQLExecutor, id int, championID, runnerUpID int, finishedAt time.Time) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.StatusFinished
	t.ChampionID = &championID
	t.RunnerUpID = &runnerUpID
	t.FinishedAt = &finishedAt
	return nil
}

func (r *fakeTournamentRepo) Reopen(ctx context.Context, _ repositories.SQLExecutor, id int) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.StatusRunning
	t.ChampionID = nil
	t.RunnerUpID = nil
	t.FinishedAt = nil
	return nil
}

func (r *fakeTournamentRepo) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.BannerKey = bannerKey
	return nil
}

func (r *fakeTournamentRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.store.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.store.tournaments, id)
	return nil
}

func (r *fakeTournamentRepo) Count(ctx context.Context, status *models.TournamentStatus) (int, error) {
	count := 0
	for _, t := range r.store.tournaments {
		if status == nil || t.Status == *status {
			count++
		}
	}
	return count, nil
}

// --- RoundRepository ---

type fakeRoundRepo struct{ store *memStore }

func (r *fakeRoundRepo) Create(ctx context.Context, _ repositories.SQLExecutor, round *models.Round) error {
	r.store.addRound(round)
	return nil
}

func (r *fakeRoundRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int) (*models.Round, error) {
	round, ok := r.store.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	return round, nil
}

func (r *fakeRoundRepo) FindByNumber(ctx context.Context, _ repositories.SQLExecutor, tournamentID, number int) (*models.Round, error) {
	for _, round := range r.store.rounds {
		if round.TournamentID == tournamentID && round.RoundNumber == number && !round.IsRepechage {
			return round, nil
		}
	}
	return nil, nil
}

func (r *fakeRoundRepo) FindOpenByNumber(ctx context.Context, exec repositories.SQLExecutor, tournamentID, number int) (*models.Round, error) {
	round, _ := r.FindByNumber(ctx, exec, tournamentID, number)
	if round == nil {
		return nil, nil
	}
	for _, m := range r.store.matches {
		if m.RoundID == round.ID && m.WinnerID == nil {
			return round, nil
		}
	}
	return nil, nil
}

func (r *fakeRoundRepo) FindRepechage(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) (*models.Round, error) {
	for _, round := range r.store.rounds {
		if round.TournamentID == tournamentID && round.IsRepechage {
			return round, nil
		}
	}
	return nil, nil
}

func (r *fakeRoundRepo) MaxRoundNumber(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	max := 0
	for _, round := range r.store.rounds {
		if round.TournamentID == tournamentID && round.RoundNumber > max {
			max = round.RoundNumber
		}
	}
	return max, nil
}

func (r *fakeRoundRepo) CountEliminationRounds(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	count := 0
	for _, round := range r.store.rounds {
		if round.TournamentID == tournamentID && !round.IsRepechage {
			count++
		}
	}
	return count, nil
}

func (r *fakeRoundRepo) ListByTournament(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.Round, error) {
	out := make([]*models.Round, 0)
	for _, round := range r.store.rounds {
		if round.TournamentID == tournamentID {
			out = append(out, round)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsRepechage != out[j].IsRepechage {
			return !out[i].IsRepechage
		}
		return out[i].RoundNumber < out[j].RoundNumber
	})
	return out, nil
}

// --- MatchRepository ---

type fakeMatchRepo struct{ store *memStore }

func (r *fakeMatchRepo) CreateBatch(ctx context.Context, _ repositories.SQLExecutor, matches []*models.Match) error {
	for _, m := range matches {
		r.store.addMatch(m)
	}
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	m, ok := r.store.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return m, nil
}

func (r *fakeMatchRepo) ListByRound(ctx context.Context, _ repositories.SQLExecutor, roundID int) ([]*models.Match, error) {
	out := make([]*models.Match, 0)
	for _, m := range r.store.matches {
		if m.RoundID == roundID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionInBracket < out[j].PositionInBracket })
	return out, nil
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.Match, error) {
	out := make([]*models.Match, 0)
	for _, m := range r.store.matches {
		if m.TournamentID == tournamentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundID != out[j].RoundID {
			return out[i].RoundID < out[j].RoundID
		}
		return out[i].PositionInBracket < out[j].PositionInBracket
	})
	return out, nil
}

func (r *fakeMatchRepo) FindByRoundPosition(ctx context.Context, _ repositories.SQLExecutor, roundID, position int) (*models.Match, error) {
	for _, m := range r.store.matches {
		if m.RoundID == roundID && m.PositionInBracket == position {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMatchRepo) FindOpenSlotForUpdate(ctx context.Context, exec repositories.SQLExecutor, roundID int) (*models.Match, error) {
	matches, _ := r.ListByRound(ctx, exec, roundID)
	for _, m := range matches {
		if m.Player2ID == nil && m.WinnerID == nil {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMatchRepo) FindByeForUpdate(ctx context.Context, exec repositories.SQLExecutor, roundID int) (*models.Match, error) {
	matches, _ := r.ListByRound(ctx, exec, roundID)
	for _, m := range matches {
		if m.IsBye {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMatchRepo) FindLastFinished(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) (*models.Match, error) {
	var best *models.Match
	for _, m := range r.store.matches {
		if m.TournamentID != tournamentID || m.WinnerID == nil || m.IsBye {
			continue
		}
		if best == nil || lastFinishedLess(best, m) {
			best = m
		}
	}
	return best, nil
}

// lastFinishedLess: true, когда b "позже" a в порядке finished_at, created_at, id.
func lastFinishedLess(a, b *models.Match) bool {
	if !a.FinishedAt.Equal(*b.FinishedAt) {
		return a.FinishedAt.Before(*b.FinishedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *fakeMatchRepo) FindLossInRound(ctx context.Context, _ repositories.SQLExecutor, roundID, playerID int) (*models.Match, error) {
	for _, m := range r.store.matches {
		if m.RoundID == roundID && m.HasPlayer(playerID) && m.WinnerID != nil && *m.WinnerID != playerID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMatchRepo) MaxPosition(ctx context.Context, _ repositories.SQLExecutor, roundID int) (int, error) {
	max := 0
	for _, m := range r.store.matches {
		if m.RoundID == roundID && m.PositionInBracket > max {
			max = m.PositionInBracket
		}
	}
	return max, nil
}

func (r *fakeMatchRepo) CountUnresolvedByRound(ctx context.Context, _ repositories.SQLExecutor, roundID int) (int, error) {
	count := 0
	for _, m := range r.store.matches {
		if m.RoundID == roundID && m.WinnerID == nil {
			count++
		}
	}
	return count, nil
}

func (r *fakeMatchRepo) CountResolvedNonByeByRound(ctx context.Context, _ repositories.SQLExecutor, roundID int) (int, error) {
	count := 0
	for _, m := range r.store.matches {
		if m.RoundID == roundID && m.WinnerID != nil && !m.IsBye {
			count++
		}
	}
	return count, nil
}

func (r *fakeMatchRepo) UpdateResult(ctx context.Context, _ repositories.SQLExecutor, id, winnerID int, p1Score, p2Score *int, finishedAt time.Time) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.WinnerID = &winnerID
	m.Player1Score = p1Score
	m.Player2Score = p2Score
	m.FinishedAt = &finishedAt
	return nil
}

func (r *fakeMatchRepo) UpdateScores(ctx context.Context, _ repositories.SQLExecutor, id int, p1Score, p2Score int) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Player1Score = &p1Score
	m.Player2Score = &p2Score
	return nil
}

func (r *fakeMatchRepo) ClearResult(ctx context.Context, _ repositories.SQLExecutor, id int) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.WinnerID = nil
	m.FinishedAt = nil
	return nil
}

func (r *fakeMatchRepo) AssignPlayer2(ctx context.Context, _ repositories.SQLExecutor, id, playerID int) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Player2ID = &playerID
	m.IsBye = false
	m.WinnerID = nil
	m.FinishedAt = nil
	return nil
}

func (r *fakeMatchRepo) DeleteByRound(ctx context.Context, _ repositories.SQLExecutor, roundID int) (int, error) {
	deleted := 0
	for id, m := range r.store.matches {
		if m.RoundID == roundID {
			delete(r.store.matches, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeMatchRepo) Count(ctx context.Context) (int, error) {
	return len(r.store.matches), nil
}

// --- PlayerRepository ---

type fakePlayerRepo struct{ store *memStore }

func (r *fakePlayerRepo) Create(ctx context.Context, _ repositories.SQLExecutor, player *models.Player) error {
	r.store.addPlayer(player)
	return nil
}

func (r *fakePlayerRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int) (*models.Player, error) {
	p, ok := r.store.players[id]
	if !ok {
		return nil, repositories.ErrPlayerNotFound
	}
	return p, nil
}

func (r *fakePlayerRepo) FindByName(ctx context.Context, _ repositories.SQLExecutor, tournamentID int, name string) (*models.Player, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, p := range r.store.players {
		if p.TournamentID == tournamentID && strings.ToLower(strings.TrimSpace(p.Name)) == needle {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakePlayerRepo) ListByTournament(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.Player, error) {
	out := make([]*models.Player, 0)
	for _, p := range r.store.players {
		if p.TournamentID == tournamentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePlayerRepo) CountByTournament(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	count := 0
	for _, p := range r.store.players {
		if p.TournamentID == tournamentID {
			count++
		}
	}
	return count, nil
}

func (r *fakePlayerRepo) MarkRebuy(ctx context.Context, _ repositories.SQLExecutor, id int) error {
	p, ok := r.store.players[id]
	if !ok {
		return repositories.ErrPlayerNotFound
	}
	p.IsRebuy = true
	return nil
}

func (r *fakePlayerRepo) Count(ctx context.Context) (int, error) {
	return len(r.store.players), nil
}

// --- Фикстура движка ---

const organizerID = 1

// engineFixture собирает турнир в состоянии running с раздачей первого
// раунда: пары по позициям, нечётному игроку bye.
type engineFixture struct {
	store      *memStore
	hub        *fakeHub
	result     ResultService
	undo       UndoService
	entry      EntryService
	tournament *models.Tournament
	rounds     map[int]*models.Round // по номеру раунда
	players    []*models.Player
	round1     []*models.Match
}

type fixtureOption func(*models.Tournament)

func withThirdPlace(thirdPct, fourthPct string) fixtureOption {
	return func(t *models.Tournament) {
		t.ThirdPlacePercentage = decimal.RequireFromString(thirdPct)
		t.FourthPlacePercentage = decimal.RequireFromString(fourthPct)
	}
}

func withStatus(status models.TournamentStatus) fixtureOption {
	return func(t *models.Tournament) { t.Status = status }
}

func newEngineFixture(playerCount int, opts ...fixtureOption) *engineFixture {
	store := newMemStore()
	hub := &fakeHub{}

	tournament := &models.Tournament{
		Name:        "Friday Knockout",
		OrganizerID: organizerID,
		Status:      models.StatusRunning,
		EntryFee:    decimal.RequireFromString("10.00"),

		OrganizerPercentage:   decimal.RequireFromString("10"),
		ThirdPlacePercentage:  decimal.Zero,
		FourthPlacePercentage: decimal.Zero,
		TotalCollected:        decimal.Zero,
		OrganizerAmount:       decimal.Zero,
		PrizePool:             decimal.Zero,
		AllowLateEntry:        true,
		AllowRebuy:            true,
	}
	for _, opt := range opts {
		opt(tournament)
	}
	store.addTournament(tournament)

	f := &engineFixture{
		store:      store,
		hub:        hub,
		tournament: tournament,
		rounds:     make(map[int]*models.Round),
	}

	tournamentRepo := &fakeTournamentRepo{store: store}
	roundRepo := &fakeRoundRepo{store: store}
	matchRepo := &fakeMatchRepo{store: store}
	playerRepo := &fakePlayerRepo{store: store}
	runner := passTxRunner{}

	f.result = NewResultService(tournamentRepo, roundRepo, matchRepo, runner, hub)
	f.undo = NewUndoService(tournamentRepo, roundRepo, matchRepo, runner, hub)
	f.entry = NewEntryService(tournamentRepo, roundRepo, matchRepo, playerRepo, runner, hub)

	for i := 0; i < playerCount; i++ {
		f.players = append(f.players, store.addPlayer(&models.Player{
			TournamentID: tournament.ID,
			Name:         "Player " + string(rune('A'+i)),
		}))
	}

	totalRounds := 0
	for (1 << totalRounds) < playerCount {
		totalRounds++
	}
	for n := 1; n <= totalRounds; n++ {
		f.rounds[n] = store.addRound(&models.Round{TournamentID: tournament.ID, RoundNumber: n})
	}

	if playerCount == 0 {
		return f
	}
	position := 0
	for i := 0; i+1 < playerCount; i += 2 {
		position++
		f.round1 = append(f.round1, store.addMatch(&models.Match{
			RoundID:           f.rounds[1].ID,
			TournamentID:      tournament.ID,
			PositionInBracket: position,
			Player1ID:         &f.players[i].ID,
			Player2ID:         &f.players[i+1].ID,
		}))
	}
	if playerCount%2 != 0 {
		position++
		last := f.players[playerCount-1]
		finishedAt := store.tick()
		f.round1 = append(f.round1, store.addMatch(&models.Match{
			RoundID:           f.rounds[1].ID,
			TournamentID:      tournament.ID,
			PositionInBracket: position,
			Player1ID:         &last.ID,
			WinnerID:          &last.ID,
			IsBye:             true,
			FinishedAt:        &finishedAt,
		}))
	}
	return f
}

func (f *engineFixture) resolve(matchID, winnerID int) (*ResultOutcome, error) {
	return f.result.RecordResult(context.Background(), organizerID, f.tournament.ID, matchID, ResultInput{WinnerID: winnerID})
}

func (f *engineFixture) matchesOfRound(number int) []*models.Match {
	round := f.rounds[number]
	if round == nil {
		return nil
	}
	out, _ := (&fakeMatchRepo{store: f.store}).ListByRound(context.Background(), nil, round.ID)
	return out
}

// --- Hub ---

type fakeHub struct{ events []brackets.Event }

func (h *fakeHub) BroadcastToRoom(roomID string, event brackets.Event) {
	h.events = append(h.events, event)
}

func (h *fakeHub) eventTypes() []string {
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}
