/*
Package catalog manages the configurable records the loyalty program is
built from: point-earning actions, redeemable prizes, and the program
regulations text.

This is plain keyed-record CRUD. The catalog holds no ledger logic; it
only supplies the (points delta, name, description) triple that callers
pass into ledger.ApplyDelta when a customer completes an action or
redeems a prize.
*/
package catalog

import (
	"context"
	"errors"

	"github.com/fidelity/loyalty-engine/ledger"
)

// ErrNotFound is returned when a catalog record does not exist.
var ErrNotFound = errors.New("catalog record not found")

// Action is a point-earning service ("Men's Haircut", 20 points).
type Action struct {
	ID          string
	Name        string
	Points      int64
	Description string
	Enabled     bool
}

// Prize is a redeemable reward and its cost in points.
type Prize struct {
	ID             string
	Name           string
	Description    string
	PointsRequired int64
}

// Store persists catalog records. Implemented by store/sqlite.
type Store interface {
	ListActions(ctx context.Context) ([]Action, error)
	SaveAction(ctx context.Context, a Action) error
	DeleteAction(ctx context.Context, id string) error

	ListPrizes(ctx context.Context) ([]Prize, error)
	SavePrize(ctx context.Context, p Prize) error
	DeletePrize(ctx context.Context, id string) error

	GetRegulations(ctx context.Context) (string, error)
	SaveRegulations(ctx context.Context, text string) error
}

// Service wraps a Store with id assignment and first-run seeding.
type Service struct {
	Store Store
}

func NewService(store Store) *Service {
	return &Service{Store: store}
}

func (s *Service) ListActions(ctx context.Context) ([]Action, error) {
	return s.Store.ListActions(ctx)
}

// SaveAction creates or updates an action. New actions get a fresh id
// and start enabled.
func (s *Service) SaveAction(ctx context.Context, a Action) (Action, error) {
	if a.ID == "" {
		a.ID = ledger.NewID()
		a.Enabled = true
	}
	if err := s.Store.SaveAction(ctx, a); err != nil {
		return Action{}, err
	}
	return a, nil
}

func (s *Service) DeleteAction(ctx context.Context, id string) error {
	return s.Store.DeleteAction(ctx, id)
}

func (s *Service) ListPrizes(ctx context.Context) ([]Prize, error) {
	return s.Store.ListPrizes(ctx)
}

// SavePrize creates or updates a prize.
func (s *Service) SavePrize(ctx context.Context, p Prize) (Prize, error) {
	if p.ID == "" {
		p.ID = ledger.NewID()
	}
	if err := s.Store.SavePrize(ctx, p); err != nil {
		return Prize{}, err
	}
	return p, nil
}

func (s *Service) DeletePrize(ctx context.Context, id string) error {
	return s.Store.DeletePrize(ctx, id)
}

func (s *Service) Regulations(ctx context.Context) (string, error) {
	return s.Store.GetRegulations(ctx)
}

func (s *Service) SaveRegulations(ctx context.Context, text string) error {
	return s.Store.SaveRegulations(ctx, text)
}

// Seed installs the starter catalog on an empty store: a couple of
// actions and prizes plus a welcome regulations text. Safe to call on
// every startup; a non-empty catalog is left alone.
func (s *Service) Seed(ctx context.Context) error {
	actions, err := s.Store.ListActions(ctx)
	if err != nil {
		return err
	}
	prizes, err := s.Store.ListPrizes(ctx)
	if err != nil {
		return err
	}
	if len(actions) > 0 || len(prizes) > 0 {
		return nil
	}

	seedActions := []Action{
		{ID: ledger.NewID(), Name: "Men's Haircut", Points: 20, Description: "Haircut service for men.", Enabled: true},
		{ID: ledger.NewID(), Name: "Women's Cut & Style", Points: 30, Description: "Cut and styling service for women.", Enabled: true},
	}
	for _, a := range seedActions {
		if err := s.Store.SaveAction(ctx, a); err != nil {
			return err
		}
	}

	seedPrizes := []Prize{
		{ID: ledger.NewID(), Name: "Free Espresso", Description: "An espresso on the house.", PointsRequired: 50},
		{ID: ledger.NewID(), Name: "10% Off Next Cut", Description: "10% discount on your next haircut.", PointsRequired: 200},
	}
	for _, p := range seedPrizes {
		if err := s.Store.SavePrize(ctx, p); err != nil {
			return err
		}
	}

	text, err := s.Store.GetRegulations(ctx)
	if err != nil {
		return err
	}
	if text == "" {
		return s.Store.SaveRegulations(ctx,
			"Welcome to our loyalty program! Earn points with every visit and redeem them for rewards.")
	}
	return nil
}
