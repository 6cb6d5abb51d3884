package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tasklink/realtime/internal/auth"
	"github.com/tasklink/realtime/internal/domain"
)

var (
	addr    = flag.String("addr", "localhost:8080", "http service address")
	project = flag.String("project", "", "project id of the room to join")
	token   = flag.String("token", "", "access token")

	// Development-only: mint a token locally instead of passing one.
	secret   = flag.String("secret", "", "shared JWT secret for local token minting")
	userID   = flag.String("user", "", "user id for local token minting")
	username = flag.String("username", "", "username for local token minting")
)

type outboundFrame struct {
	Type     string          `json:"type"`
	Message  *domain.Message `json:"message,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
	Username string          `json:"username,omitempty"`
	Status   string          `json:"status,omitempty"`
	IsTyping bool            `json:"is_typing,omitempty"`
	Detail   string          `json:"detail,omitempty"`
}

func main() {
	flag.Parse()

	if *project == "" {
		log.Fatal("-project is required")
	}

	accessToken := *token
	if accessToken == "" {
		if *secret == "" || *userID == "" {
			log.Fatal("pass -token, or -secret and -user to mint one locally")
		}
		name := *username
		if name == "" {
			name = *userID
		}
		minted, err := auth.NewVerifier(*secret).Mint(domain.User{ID: *userID, Username: name}, time.Hour)
		if err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		accessToken = minted
	}

	conn := connectWebSocket(accessToken)
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go readFrames(conn, done)

	fmt.Println("Write Messages (Press Enter to Send, '/typing on|off' for indicators):")
	writeFrames(conn, interrupt, done)
}

func connectWebSocket(accessToken string) *websocket.Conn {
	u := url.URL{
		Scheme:   "ws",
		Host:     *addr,
		Path:     "/ws/projects/" + *project,
		RawQuery: "token=" + url.QueryEscape(accessToken),
	}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect to WebSocket server: %v", err)
	}
	log.Println("Connected to WebSocket server.")
	return conn
}

func readFrames(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("Error reading message: %v", err)
			return
		}

		var frame outboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("Error parsing frame: %v", err)
			continue
		}

		switch frame.Type {
		case domain.FrameMessage:
			if frame.Message != nil {
				fmt.Printf("\n[%s] %s: %s\n",
					frame.Message.CreatedAt.Format(time.RFC3339),
					frame.Message.Sender.Username,
					frame.Message.Content)
			}
		case domain.FrameUserStatus:
			fmt.Printf("\n* %s is %s\n", frame.Username, frame.Status)
		case domain.FrameTyping:
			if frame.IsTyping {
				fmt.Printf("\n* %s is typing...\n", frame.Username)
			}
		case domain.FrameError:
			fmt.Printf("\n! %s\n", frame.Detail)
		}
	}
}

func writeFrames(conn *websocket.Conn, interrupt chan os.Signal, done chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection...")
			err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Printf("Error during close: %v", err)
			}
			return
		default:
			if scanner.Scan() {
				content := scanner.Text()
				if content == "" {
					continue
				}

				frame := domain.Inbound{Type: domain.InboundMessage, Content: content}
				if state, ok := strings.CutPrefix(content, "/typing "); ok {
					frame = domain.Inbound{Type: domain.InboundTyping, IsTyping: state == "on"}
				}

				if err := conn.WriteJSON(frame); err != nil {
					log.Printf("Error sending frame: %v", err)
					return
				}
			}
		}
	}
}
