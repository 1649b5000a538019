package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/snakesgame/internal/dependencies/mocks"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage/memory"
	"github.com/mcoot/snakesgame/internal/testutil"
)

type failingReaper struct{}

func (failingReaper) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, errors.New("disk I/O error")
}

type JanitorSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	janitor *Janitor
	ctx     context.Context
}

func TestJanitorSuite(t *testing.T) {
	suite.Run(t, new(JanitorSuite))
}

func (s *JanitorSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.ctx = context.Background()
	s.janitor = New(s.storage, s.clock, 10*time.Millisecond, testutil.NopLogger())
}

func (s *JanitorSuite) TearDownTest() {
	s.NoError(s.janitor.Stop())
}

func (s *JanitorSuite) putConnection(id model.ChannelID, ttl time.Duration) {
	now := s.clock.Now()
	s.Require().NoError(s.storage.PutConnection(s.ctx, &model.Connection{
		ChannelID:   id,
		ConnectedAt: now,
		ExpiresAt:   now.Add(ttl),
	}))
}

func (s *JanitorSuite) TestRunOnceReapsOnlyExpired() {
	s.putConnection("short", time.Minute)
	s.putConnection("long", time.Hour)
	s.clock.Advance(2 * time.Minute)

	reaped, err := s.janitor.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, reaped)

	_, err = s.storage.GetConnection(s.ctx, "short")
	s.ErrorIs(err, model.ErrConnectionNotFound)
	_, err = s.storage.GetConnection(s.ctx, "long")
	s.NoError(err)
}

func (s *JanitorSuite) TestRunOnceNothingToReap() {
	s.putConnection("fresh", time.Minute)

	reaped, err := s.janitor.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(reaped)
}

func (s *JanitorSuite) TestRunOncePropagatesErrors() {
	j := New(failingReaper{}, s.clock, time.Minute, testutil.NopLogger())
	_, err := j.RunOnce(s.ctx)
	s.ErrorContains(err, "disk I/O error")
}

func (s *JanitorSuite) TestBackgroundFailuresAreLogged() {
	logger, logs := testutil.CaptureLogger()
	j := New(failingReaper{}, s.clock, 10*time.Millisecond, logger)
	s.Require().NoError(j.Start())
	defer func() { s.NoError(j.Stop()) }()

	s.Eventually(func() bool {
		rec, ok := logs.Find("sweep failed")
		return ok && rec["component"] == "janitor"
	}, time.Second, 5*time.Millisecond)
}

func (s *JanitorSuite) TestStartSweepsInBackground() {
	s.putConnection("stale", time.Minute)
	s.clock.Advance(time.Hour)

	s.Require().NoError(s.janitor.Start())

	s.Eventually(func() bool {
		_, err := s.storage.GetConnection(s.ctx, "stale")
		return errors.Is(err, model.ErrConnectionNotFound)
	}, time.Second, 5*time.Millisecond)
}

func (s *JanitorSuite) TestStartTwiceAndStopTwice() {
	s.Require().NoError(s.janitor.Start())
	s.Require().NoError(s.janitor.Start())
	s.Require().NoError(s.janitor.Stop())
	s.Require().NoError(s.janitor.Stop())
}

func (s *JanitorSuite) TestDefaultInterval() {
	j := New(s.storage, s.clock, 0, testutil.NopLogger())
	s.Equal(DefaultInterval, j.interval)
}
