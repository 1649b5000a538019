package poll

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/snakesgame/internal/api/apierr"
	"github.com/mcoot/snakesgame/internal/dependencies/mocks"
	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
	"github.com/mcoot/snakesgame/internal/services/connection"
	"github.com/mcoot/snakesgame/internal/services/game"
	"github.com/mcoot/snakesgame/internal/services/session"
	"github.com/mcoot/snakesgame/internal/storage/memory"
	"github.com/mcoot/snakesgame/internal/testutil"
)

type HandlerSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	games   *game.Controller
	mailbox *Mailbox
	handler *Handler
	ctx     context.Context
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.ctx = context.Background()

	s.mailbox = NewMailbox(s.clock, logger)
	s.games = game.NewController(s.storage, game.DefaultConfig(), s.clock, s.random, logger)
	registry := connection.NewRegistry(s.storage, s.clock, connection.DefaultTTL, logger)
	broadcaster := broadcast.New(s.storage, s.mailbox, logger)
	dispatcher := session.NewDispatcher(s.games, registry, broadcaster, logger)
	s.handler = NewHandler(s.mailbox, registry, s.games, dispatcher, s.random, 0, logger)
}

func (s *HandlerSuite) connect() model.ChannelID {
	rec := httptest.NewRecorder()
	s.handler.Connect(rec, httptest.NewRequest(http.MethodPost, "/api/v1/poll/connect", nil))
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ConnectResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ConnectionID
}

func (s *HandlerSuite) request(fn http.HandlerFunc, id model.ChannelID, body string) *httptest.ResponseRecorder {
	method := http.MethodGet
	var reader *strings.Reader
	if body != "" {
		method = http.MethodPost
		reader = strings.NewReader(body)
	}
	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, "/api/v1/poll", reader)
	} else {
		req = httptest.NewRequest(method, "/api/v1/poll", nil)
	}
	if id != "" {
		req.Header.Set(ConnectionHeader, string(id))
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) []message.ServerMessage {
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp MessagesResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	msgs := make([]message.ServerMessage, len(resp.Messages))
	for i, raw := range resp.Messages {
		msg, err := message.DecodeServer(raw)
		s.Require().NoError(err)
		msgs[i] = msg
	}
	return msgs
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var resp apierr.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func (s *HandlerSuite) join(id model.ChannelID, code model.GameCode, name string) message.JoinedGame {
	body := fmt.Sprintf(`{"action":"joinGame","gameCode":%q,"playerName":%q}`, code, name)
	msgs := s.decode(s.request(s.handler.Send, id, body))
	s.Require().Len(msgs, 1)
	joined, ok := msgs[0].(message.JoinedGame)
	s.Require().True(ok)
	return joined
}

func (s *HandlerSuite) createGame() model.GameCode {
	s.random.QueueString("ABCDEF")
	result, err := s.games.CreateGame(s.ctx, "Ann", nil)
	s.Require().NoError(err)
	return result.Game.Code
}

// Connect tests

func (s *HandlerSuite) TestConnectCreatesShortLivedChannel() {
	id := s.connect()
	s.True(strings.HasPrefix(string(id), ChannelPrefix))

	conn, err := s.storage.GetConnection(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(s.clock.Now().Add(DefaultTTL), conn.ExpiresAt)
	s.False(conn.IsLinked())
	s.Equal(1, s.mailbox.Len())
}

// Messages tests

func (s *HandlerSuite) TestMessagesRequiresHeader() {
	rec := s.request(s.handler.Messages, "", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(apierr.CodeInvalidRequest, s.errorCode(rec))
}

func (s *HandlerSuite) TestMessagesUnknownChannel() {
	rec := s.request(s.handler.Messages, "poll_nope", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(apierr.CodeConnectionNotFound, s.errorCode(rec))
}

func (s *HandlerSuite) TestMessagesUnlinkedIsEmpty() {
	id := s.connect()
	s.Empty(s.decode(s.request(s.handler.Messages, id, "")))
}

func (s *HandlerSuite) TestMessagesSnapshotThenQueued() {
	code := s.createGame()
	ann := s.connect()
	ben := s.connect()
	s.join(ann, code, "Ann")
	s.join(ben, code, "Ben")

	msgs := s.decode(s.request(s.handler.Messages, ann, ""))
	s.Require().Len(msgs, 2)

	state, ok := msgs[0].(message.GameState)
	s.Require().True(ok)
	s.Len(state.Players, 2)

	joined, ok := msgs[1].(message.PlayerJoined)
	s.Require().True(ok)
	s.Equal("Ben", joined.Player.Name)

	// Drained: only the snapshot remains
	msgs = s.decode(s.request(s.handler.Messages, ann, ""))
	s.Require().Len(msgs, 1)
	s.Equal(message.TypeGameState, msgs[0].Type())
}

func (s *HandlerSuite) TestPollingRefreshesExpiry() {
	id := s.connect()
	for i := 0; i < 3; i++ {
		s.clock.Advance(4 * time.Minute)
		s.Equal(http.StatusOK, s.request(s.handler.Messages, id, "").Code)
	}

	s.clock.Advance(DefaultTTL + time.Second)
	rec := s.request(s.handler.Messages, id, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Zero(s.mailbox.Len())
}

// Send tests

func (s *HandlerSuite) TestSendPingReturnsPong() {
	id := s.connect()
	msgs := s.decode(s.request(s.handler.Send, id, `{"action":"ping"}`))
	s.Equal([]message.ServerMessage{message.Pong{}}, msgs)
}

func (s *HandlerSuite) TestSendInvalidMessage() {
	id := s.connect()
	msgs := s.decode(s.request(s.handler.Send, id, `{"action":"joinGame","gameCode":"ABCDEF"}`))
	s.Require().Len(msgs, 1)
	reply, ok := msgs[0].(message.Error)
	s.Require().True(ok)
	s.Equal(message.CodeInvalidMessage, reply.Code)
}

func (s *HandlerSuite) TestSendRollBroadcastsToOtherChannels() {
	code := s.createGame()
	ann := s.connect()
	ben := s.connect()
	annJoined := s.join(ann, code, "Ann")
	s.join(ben, code, "Ben")

	start := fmt.Sprintf(`{"action":"startGame","gameCode":%q,"playerId":%q}`, code, annJoined.PlayerID)
	msgs := s.decode(s.request(s.handler.Send, ann, start))
	// Ben's join announcement was still queued for Ann
	s.Require().Len(msgs, 2)
	s.Equal(message.TypeGameStarted, msgs[1].Type())

	s.random.QueueRolls(4)
	roll := fmt.Sprintf(`{"action":"rollDice","gameCode":%q,"playerId":%q}`, code, annJoined.PlayerID)
	msgs = s.decode(s.request(s.handler.Send, ann, roll))
	s.Require().Len(msgs, 1)
	moved, ok := msgs[0].(message.PlayerMoved)
	s.Require().True(ok)
	s.Equal(4, moved.NewPosition)

	msgs = s.decode(s.request(s.handler.Messages, ben, ""))
	s.Require().Len(msgs, 3)
	s.Equal(message.TypeGameState, msgs[0].Type())
	s.Equal(message.TypeGameStarted, msgs[1].Type())
	s.Equal(message.TypePlayerMoved, msgs[2].Type())
}

// Disconnect tests

func (s *HandlerSuite) TestDisconnectAnnouncesLeave() {
	code := s.createGame()
	ann := s.connect()
	ben := s.connect()
	s.join(ann, code, "Ann")
	benJoined := s.join(ben, code, "Ben")
	s.mailbox.Drain(ann)

	rec := s.request(s.handler.Disconnect, ben, "")
	s.Equal(http.StatusNoContent, rec.Code)

	payloads, ok := s.mailbox.Drain(ann)
	s.Require().True(ok)
	s.Require().Len(payloads, 1)
	msg, err := message.DecodeServer(payloads[0])
	s.Require().NoError(err)
	s.Equal(message.PlayerLeft{PlayerID: benJoined.PlayerID, PlayerName: "Ben"}, msg)

	s.Equal(http.StatusNotFound, s.request(s.handler.Messages, ben, "").Code)
}

// Mailbox tests

func (s *HandlerSuite) TestMailboxPushUnknownIsGone() {
	s.ErrorIs(s.mailbox.Push(s.ctx, "missing", []byte(`{}`)), broadcast.ErrGone)
}

func (s *HandlerSuite) TestMailboxDropsOldestWhenFull() {
	s.mailbox.Open("chan")
	for i := 0; i < MaxQueued+2; i++ {
		s.Require().NoError(s.mailbox.Push(s.ctx, "chan", []byte(fmt.Sprint(i))))
	}

	payloads, ok := s.mailbox.Drain("chan")
	s.Require().True(ok)
	s.Len(payloads, MaxQueued)
	s.True(bytes.Equal([]byte("2"), payloads[0]))
}

func (s *HandlerSuite) TestMailboxPruneIdle() {
	s.mailbox.Open("old")
	s.clock.Advance(10 * time.Minute)
	s.mailbox.Open("new")

	s.Equal(1, s.mailbox.Prune(5*time.Minute))
	_, ok := s.mailbox.Drain("old")
	s.False(ok)
	_, ok = s.mailbox.Drain("new")
	s.True(ok)
}
