package services

import (
	"context"

	"github.com/Dosada05/knockout-system/models"
	"github.com/Dosada05/knockout-system/repositories"
	"golang.org/x/sync/errgroup"
)

type DashboardService interface {
	GetStats(ctx context.Context) (*models.DashboardStats, error)
}

type dashboardService struct {
	userRepo       repositories.UserRepository
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	playerRepo     repositories.PlayerRepository
}

func NewDashboardService(
	userRepo repositories.UserRepository,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	playerRepo repositories.PlayerRepository,
) DashboardService {
	return &dashboardService{
		userRepo:       userRepo,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		playerRepo:     playerRepo,
	}
}

func (s *dashboardService) GetStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		stats.OrganizersTotal, err = s.userRepo.Count(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TournamentsTotal, err = s.tournamentRepo.Count(gCtx, nil)
		return err
	})
	g.Go(func() error {
		running := models.StatusRunning
		var err error
		stats.RunningTournaments, err = s.tournamentRepo.Count(gCtx, &running)
		return err
	})
	g.Go(func() error {
		finished := models.StatusFinished
		var err error
		stats.FinishedTournaments, err = s.tournamentRepo.Count(gCtx, &finished)
		return err
	})
	g.Go(func() error {
		var err error
		stats.MatchesTotal, err = s.matchRepo.Count(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.PlayersTotal, err = s.playerRepo.Count(gCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
