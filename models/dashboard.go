package models

type DashboardStats struct {
	OrganizersTotal     int `json:"organizers_total"`
	TournamentsTotal    int `json:"tournaments_total"`
	RunningTournaments  int `json:"running_tournaments"`
	FinishedTournaments int `json:"finished_tournaments"`
	MatchesTotal        int `json:"matches_total"`
	PlayersTotal        int `json:"players_total"`
}
