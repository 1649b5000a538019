package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
	redisstorage "github.com/mcoot/snakesgame/internal/storage/redis"
	"github.com/mcoot/snakesgame/internal/transport/poll"
)

// node drives one server process through its router
type node struct {
	t      *testing.T
	router http.Handler
}

func (n node) do(method, path string, id model.ChannelID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if id != "" {
		req.Header.Set(poll.ConnectionHeader, string(id))
	}
	rec := httptest.NewRecorder()
	n.router.ServeHTTP(rec, req)
	return rec
}

func (n node) createGame(name string) model.GameCode {
	rec := n.do(http.MethodPost, "/api/v1/games", "", fmt.Sprintf(`{"creatorName":%q}`, name))
	require.Equal(n.t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Game model.Game `json:"game"`
	}
	require.NoError(n.t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created.Game.Code
}

func (n node) connect() model.ChannelID {
	rec := n.do(http.MethodPost, "/api/v1/poll/connect", "", "")
	require.Equal(n.t, http.StatusOK, rec.Code)
	var resp poll.ConnectResponse
	require.NoError(n.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ConnectionID
}

func (n node) send(id model.ChannelID, body string) []message.ServerMessage {
	return n.decode(n.do(http.MethodPost, "/api/v1/poll/send", id, body))
}

func (n node) poll(id model.ChannelID) []message.ServerMessage {
	return n.decode(n.do(http.MethodGet, "/api/v1/poll/messages", id, ""))
}

func (n node) decode(rec *httptest.ResponseRecorder) []message.ServerMessage {
	require.Equal(n.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp poll.MessagesResponse
	require.NoError(n.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	msgs := make([]message.ServerMessage, len(resp.Messages))
	for i, raw := range resp.Messages {
		msg, err := message.DecodeServer(raw)
		require.NoError(n.t, err)
		msgs[i] = msg
	}
	return msgs
}

func joinBody(code model.GameCode, name string) string {
	return fmt.Sprintf(`{"action":"joinGame","gameCode":%q,"playerName":%q}`, code, name)
}

type ClusterSuite struct {
	suite.Suite
	nodes []*TestApp
	a, b  node
	ctx   context.Context
}

func TestClusterSuite(t *testing.T) {
	suite.Run(t, new(ClusterSuite))
}

func (s *ClusterSuite) SetupTest() {
	s.nodes = NewTestCluster(2, Config{})
	for _, app := range s.nodes {
		s.Require().NoError(app.Start())
	}
	s.a = node{t: s.T(), router: s.nodes[0].Router()}
	s.b = node{t: s.T(), router: s.nodes[1].Router()}
	s.ctx = context.Background()
}

func (s *ClusterSuite) TearDownTest() {
	for _, app := range s.nodes {
		s.NoError(app.Close())
	}
}

func (s *ClusterSuite) TestBroadcastReachesChannelOnOtherNode() {
	s.nodes[0].MockRandom.QueueString("SNAKE3")
	code := s.a.createGame("Ann")

	ann := s.a.connect()
	ben := s.b.connect()
	s.Require().Len(s.a.send(ann, joinBody(code, "Ann")), 1)
	benJoined := s.b.send(ben, joinBody(code, "Ben"))
	s.Require().Len(benJoined, 1)
	benID := benJoined[0].(message.JoinedGame).PlayerID

	// Ben's arrival was announced by node 2 to Ann's channel on node 1
	msgs := s.a.poll(ann)
	s.Require().Len(msgs, 2)
	s.Equal(message.TypeGameState, msgs[0].Type())
	joined := msgs[1].(message.PlayerJoined)
	s.Equal(benID, joined.Player.ID)

	conn, err := s.nodes[0].Storage.GetConnection(s.ctx, ann)
	s.Require().NoError(err)
	s.Equal(model.NodeID("node-1"), conn.NodeID)

	// And back the other way
	annID := s.a.poll(ann)[0].(message.GameState).Players[0].ID
	s.a.send(ann, fmt.Sprintf(`{"action":"startGame","gameCode":%q,"playerId":%q}`, code, annID))

	msgs = s.b.poll(ben)
	s.Require().Len(msgs, 2)
	s.Equal(message.TypeGameStarted, msgs[1].Type())
}

func (s *ClusterSuite) TestStoppedNodesChannelsArePruned() {
	s.nodes[0].MockRandom.QueueString("SNAKE4")
	code := s.a.createGame("Ann")

	ann := s.a.connect()
	ben := s.b.connect()
	s.a.send(ann, joinBody(code, "Ann"))
	s.Require().NoError(s.nodes[0].Close())

	s.b.send(ben, joinBody(code, "Ben"))

	_, err := s.nodes[1].Storage.GetConnection(s.ctx, ann)
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *ClusterSuite) TestPollingFromAnotherNodeMovesTheChannel() {
	s.nodes[0].MockRandom.QueueString("SNAKE5")
	code := s.a.createGame("Ann")

	ann := s.a.connect()
	ben := s.b.connect()
	s.a.send(ann, joinBody(code, "Ann"))

	// Ann's next request lands on node 2
	s.b.poll(ann)
	s.b.send(ben, joinBody(code, "Ben"))

	msgs := s.b.poll(ann)
	s.Require().Len(msgs, 2)
	s.Equal(message.TypePlayerJoined, msgs[1].Type())
}

func TestRedisNodesRelayBroadcasts(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisstorage.DefaultConfig()
	cfg.URL = "redis://" + mr.Addr()

	var apps []*App
	for range 2 {
		app, err := New(Config{StorageType: StorageTypeRedis, RedisConfig: &cfg})
		require.NoError(t, err)
		require.NoError(t, app.Start())
		apps = append(apps, app)
	}
	defer func() {
		for _, app := range apps {
			require.NoError(t, app.Close())
		}
	}()
	require.NotEqual(t, apps[0].Node, apps[1].Node)

	a := node{t: t, router: apps[0].Router()}
	b := node{t: t, router: apps[1].Router()}

	code := a.createGame("Ann")
	ann := a.connect()
	ben := b.connect()
	a.send(ann, joinBody(code, "Ann"))
	b.send(ben, joinBody(code, "Ben"))

	// Pub/Sub delivery is asynchronous
	var seen []message.ServerMessage
	require.Eventually(t, func() bool {
		seen = append(seen, a.poll(ann)...)
		for _, msg := range seen {
			if joined, ok := msg.(message.PlayerJoined); ok && joined.Player.Name == "Ben" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	_, err := apps[1].Storage.GetConnection(context.Background(), ann)
	require.NoError(t, err)
}
