package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
)

const playHelp = `Commands:
  start   start the game (creator only)
  roll    roll the die
  ping    check the connection
  quit    leave the game`

func newPlayCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "play <code>",
		Short: "Join a game and play from the terminal",
		Long: `Join a game over WebSocket, print its events and read commands from
standard input, one per line.

` + playHelp + `

Joining with the name of an existing player in a waiting game rejoins as
that player. The command exits when the game ends or on Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, strings.ToUpper(args[0]), name, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Your player name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newWatchCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "watch <code>",
		Short: "Join a game and stream its events",
		Long: `Join a game over WebSocket and print every event until the game ends.

Events include:
  - joinedGame: you joined, with the current players
  - playerJoined / playerLeft: someone arrived or disconnected
  - gameStarted: the creator started the game
  - playerMoved: a roll and where it landed
  - gameEnded: a player reached the last cell

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, strings.ToUpper(args[0]), name, nil)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Your player name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// session is one realtime connection to a game
type session struct {
	conn *websocket.Conn
	out  *Output
	code model.GameCode

	writeMu sync.Mutex

	mu       sync.Mutex
	playerID model.PlayerID
}

func runSession(cmd *cobra.Command, code, name string, commands io.Reader) error {
	// Set up cancellation
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := client.DialGame(ctx)
	if err != nil {
		return err
	}

	s := &session{
		conn: conn,
		out:  NewOutput(cfg.Output, cmd.OutOrStdout()),
		code: model.GameCode(code),
	}
	defer s.close()

	if err := s.send(message.JoinGame{GameCode: s.code, PlayerName: name}); err != nil {
		return err
	}

	joined := make(chan struct{})
	done := make(chan error, 2)
	go func() {
		done <- s.readLoop(joined)
	}()

	if commands != nil {
		go func() {
			select {
			case <-joined:
			case <-ctx.Done():
				return
			}
			if err := s.commandLoop(commands); err != nil {
				done <- err
			}
		}()
	}

	select {
	case err := <-done:
		if errors.Is(err, errQuit) {
			return nil
		}
		return err
	case <-ctx.Done():
		if s.out.format != "json" {
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected")
		}
		return nil
	}
}

// readLoop prints events until the game ends or the connection drops
func (s *session) readLoop(joined chan<- struct{}) error {
	var joinedOnce sync.Once
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		msg, err := message.DecodeServer(data)
		if err != nil {
			continue
		}
		s.out.PrintEvent(msg)

		switch m := msg.(type) {
		case message.JoinedGame:
			s.mu.Lock()
			s.playerID = m.PlayerID
			s.mu.Unlock()
			joinedOnce.Do(func() { close(joined) })
		case message.GameEnded:
			return nil
		case message.Error:
			// Failing to join leaves nothing to do
			if s.currentPlayer() == "" {
				return fmt.Errorf("%s (%s)", m.Message, m.Code)
			}
		}
	}
}

// commandLoop sends one request per input line. It returns errQuit on quit
// and nil at end of input, leaving the session to run until the game ends.
func (s *session) commandLoop(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var msg any
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
			continue
		case "roll", "r":
			msg = message.RollDice{GameCode: s.code, PlayerID: s.currentPlayer()}
		case "start", "s":
			msg = message.StartGame{GameCode: s.code, PlayerID: s.currentPlayer()}
		case "ping":
			msg = message.Ping{}
		case "quit", "q", "exit":
			return errQuit
		default:
			s.out.PrintMessage(playHelp)
			continue
		}
		if err := s.send(msg); err != nil {
			return err
		}
	}
	return scanner.Err()
}

var errQuit = errors.New("quit")

func (s *session) currentPlayer() model.PlayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

func (s *session) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

func (s *session) close() {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	_ = s.conn.Close()
}
