//go:build integration

package store_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"contacthub/internal/contact/models"
	"contacthub/internal/contact/store"
	"contacthub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(s.pg.Apply(context.Background(), store.Schema))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = store.NewPostgres(s.pg.Pool, s.pg.URL, logger)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.pg.Pool.Close()
	_ = s.pg.Container.Terminate(context.Background())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateContacts(context.Background()))
}

func (s *PostgresStoreSuite) TestInsertAndGetByID() {
	ctx := context.Background()

	stored, err := s.store.Insert(ctx, models.ContactRecord{
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		Company: "Analytical Engines",
		Message: "hello",
	})
	s.Require().NoError(err)
	s.NotEmpty(stored.ID)
	s.False(stored.CreatedAt.IsZero())
	s.Equal(models.StatusNew, stored.Status)

	got, err := s.store.GetByID(ctx, stored.ID)
	s.Require().NoError(err)
	s.Equal("Ada Lovelace", got.Name)
	s.Equal("Analytical Engines", got.Company)
	s.Equal(models.StatusNew, got.Status)
	s.False(got.Read)
}

func (s *PostgresStoreSuite) TestGetByIDNotFound() {
	_, err := s.store.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestGetAllOrdersByRecency() {
	ctx := context.Background()

	older, err := s.store.Insert(ctx, models.ContactRecord{Name: "Older", Email: "o@example.com"})
	s.Require().NoError(err)
	newer, err := s.store.Insert(ctx, models.ContactRecord{Name: "Newer", Email: "n@example.com"})
	s.Require().NoError(err)

	all, err := s.store.GetAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(newer.ID, all[0].ID)
	s.Equal(older.ID, all[1].ID)
}

func (s *PostgresStoreSuite) TestUpdateFieldsMergesDocument() {
	ctx := context.Background()

	stored, err := s.store.Insert(ctx, models.ContactRecord{Name: "Ada", Email: "ada@example.com"})
	s.Require().NoError(err)

	now := time.Now().UTC().Truncate(time.Second)
	err = s.store.UpdateFields(ctx, stored.ID, map[string]any{
		"status":    string(models.StatusReplied),
		"updatedAt": now,
	})
	s.Require().NoError(err)

	got, err := s.store.GetByID(ctx, stored.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusReplied, got.Status)
	s.True(got.UpdatedAt.Equal(now))
	s.Equal("Ada", got.Name, "untouched fields survive the merge")
}

func (s *PostgresStoreSuite) TestUpdateFieldsNotFound() {
	err := s.store.UpdateFields(context.Background(),
		"00000000-0000-0000-0000-000000000000", map[string]any{"read": true})
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()

	stored, err := s.store.Insert(ctx, models.ContactRecord{Name: "Ada", Email: "ada@example.com"})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(ctx, stored.ID))
	_, err = s.store.GetByID(ctx, stored.ID)
	s.ErrorIs(err, store.ErrNotFound)

	s.ErrorIs(s.store.Delete(ctx, stored.ID), store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSubscribeDeliversChangeFeed() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.store.Subscribe(ctx)
	s.Require().NoError(err)

	stored, err := s.store.Insert(ctx, models.ContactRecord{Name: "Ada", Email: "ada@example.com"})
	s.Require().NoError(err)

	batch := s.nextEvent(events)
	s.Require().Len(batch, 1)
	s.Equal(models.ChangeAdded, batch[0].Type)
	s.Equal(stored.ID, batch[0].ID)
	s.Equal("Ada", batch[0].Record.Name)

	s.Require().NoError(s.store.UpdateFields(ctx, stored.ID, map[string]any{"read": true}))
	batch = s.nextEvent(events)
	s.Require().Len(batch, 1)
	s.Equal(models.ChangeModified, batch[0].Type)
	s.True(batch[0].Record.Read)

	s.Require().NoError(s.store.Delete(ctx, stored.ID))
	batch = s.nextEvent(events)
	s.Require().Len(batch, 1)
	s.Equal(models.ChangeRemoved, batch[0].Type)
	s.Equal(stored.ID, batch[0].ID)
}

func (s *PostgresStoreSuite) TestSubscribeClosesOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())

	events, err := s.store.Subscribe(ctx)
	s.Require().NoError(err)

	cancel()
	select {
	case _, ok := <-events:
		s.False(ok, "feed channel should close after cancellation")
	case <-time.After(5 * time.Second):
		s.Fail("feed channel did not close")
	}
}

func (s *PostgresStoreSuite) nextEvent(events <-chan []models.ChangeEvent) []models.ChangeEvent {
	s.T().Helper()
	select {
	case batch, ok := <-events:
		s.Require().True(ok, "feed closed unexpectedly")
		return batch
	case <-time.After(10 * time.Second):
		s.FailNow("timed out waiting for change event")
		return nil
	}
}
