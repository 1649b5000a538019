package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

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
	storage    *memory.Storage
	random     *mocks.MockRandom
	games      *game.Controller
	hub        *Hub
	dispatcher *session.Dispatcher
	server     *httptest.Server
	wsURL      string
	ctx        context.Context
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := testutil.NopLogger()
	clk := mocks.NewMockClock(time.Now().UTC())
	s.storage = memory.New()
	s.random = mocks.NewMockRandom()
	s.ctx = context.Background()

	s.hub = NewHub(logger)
	s.games = game.NewController(s.storage, game.DefaultConfig(), clk, s.random, logger)
	registry := connection.NewRegistry(s.storage, clk, connection.DefaultTTL, logger)
	broadcaster := broadcast.New(s.storage, s.hub, logger)
	s.dispatcher = session.NewDispatcher(s.games, registry, broadcaster, logger)

	s.server = httptest.NewServer(NewHandler(s.hub, s.dispatcher, s.random, nil, logger))
	s.wsURL = "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *HandlerSuite) TearDownTest() {
	s.hub.Close()
	s.server.Close()
}

func (s *HandlerSuite) dial() *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *HandlerSuite) write(conn *websocket.Conn, msg message.ClientMessage) {
	payload, err := json.Marshal(msg)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, payload))
}

func (s *HandlerSuite) read(conn *websocket.Conn) message.ServerMessage {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, payload, err := conn.ReadMessage()
	s.Require().NoError(err)
	msg, err := message.DecodeServer(payload)
	s.Require().NoError(err)
	return msg
}

func (s *HandlerSuite) createGame() model.GameCode {
	s.random.QueueString("ABCDEF")
	result, err := s.games.CreateGame(s.ctx, "Ann", nil)
	s.Require().NoError(err)
	return result.Game.Code
}

func (s *HandlerSuite) TestPingPong() {
	conn := s.dial()
	s.write(conn, message.Ping{})
	s.Equal(message.Pong{}, s.read(conn))
}

func (s *HandlerSuite) TestMalformedMessage() {
	conn := s.dial()
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	reply, ok := s.read(conn).(message.Error)
	s.Require().True(ok)
	s.Equal(message.CodeInvalidMessage, reply.Code)
}

func (s *HandlerSuite) TestJoinAndLeave() {
	code := s.createGame()

	ann := s.dial()
	s.write(ann, message.JoinGame{GameCode: code, PlayerName: "Ann"})
	s.Equal(message.TypeJoinedGame, s.read(ann).Type())

	ben := s.dial()
	s.write(ben, message.JoinGame{GameCode: code, PlayerName: "Ben"})
	joined, ok := s.read(ben).(message.JoinedGame)
	s.Require().True(ok)
	s.Len(joined.Players, 2)

	announced, ok := s.read(ann).(message.PlayerJoined)
	s.Require().True(ok)
	s.Equal("Ben", announced.Player.Name)

	s.Require().NoError(ben.Close())

	left, ok := s.read(ann).(message.PlayerLeft)
	s.Require().True(ok)
	s.Equal(joined.PlayerID, left.PlayerID)
	s.Equal("Ben", left.PlayerName)

	s.Eventually(func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func (s *HandlerSuite) TestConnectionRecordedWhileOpen() {
	conn := s.dial()
	s.write(conn, message.Ping{})
	s.read(conn)

	s.Equal(1, s.hub.ClientCount())
	var id model.ChannelID
	s.hub.mu.RLock()
	for clientID := range s.hub.clients {
		id = clientID
	}
	s.hub.mu.RUnlock()

	_, err := s.storage.GetConnection(s.ctx, id)
	s.Require().NoError(err)

	s.Require().NoError(conn.Close())
	s.Eventually(func() bool {
		_, err := s.storage.GetConnection(s.ctx, id)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func (s *HandlerSuite) TestPushToUnknownChannelIsGone() {
	err := s.hub.Push(s.ctx, "missing", []byte(`{}`))
	s.ErrorIs(err, broadcast.ErrGone)
}

func (s *HandlerSuite) TestHubCloseDisconnectsClients() {
	conn := s.dial()
	s.write(conn, message.Ping{})
	s.read(conn)

	s.hub.Close()

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	s.Error(err)
}

func (s *HandlerSuite) TestOriginCheck() {
	server := httptest.NewServer(NewHandler(s.hub, s.dispatcher, s.random, []string{"https://snakes.example"}, testutil.NopLogger()))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	s.ErrorIs(err, websocket.ErrBadHandshake)
	s.Require().NotNil(resp)
	s.Equal(http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://snakes.example"}})
	s.Require().NoError(err)
	_ = conn.Close()
}
