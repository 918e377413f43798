// Command main follows a user's live directory over the websocket API and
// prints every frame it receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type directoryView struct {
	UID     string `json:"uid"`
	Version uint64 `json:"version"`
	Friends []struct {
		UID      string `json:"uid"`
		Presence struct {
			Online bool `json:"online"`
		} `json:"presence"`
	} `json:"friends"`
	Incoming []json.RawMessage `json:"incoming"`
	Outgoing []json.RawMessage `json:"outgoing"`
	Degraded bool              `json:"degraded"`
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	token := flag.String("token", "", "Bearer token (see cmd/token)")
	heartbeat := flag.Duration("heartbeat", 30*time.Second, "Heartbeat interval, 0 to disable")
	raw := flag.Bool("raw", false, "Print frames unmodified")
	flag.Parse()

	if *token == "" {
		log.Fatal("-token is required")
	}

	u := url.URL{Scheme: "ws", Host: *host, Path: "/api/ws", RawQuery: "token=" + url.QueryEscape(*token)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial %s failed: %v", u.Host, err)
	}
	defer func() { _ = conn.Close() }()
	log.Printf("Connected to %s", u.Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Connection closed: %v", err)
				return
			}
			printFrame(message, *raw)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var tick <-chan time.Time
	if *heartbeat > 0 {
		ticker := time.NewTicker(*heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-tick:
			if err := conn.WriteJSON(map[string]string{"type": "heartbeat"}); err != nil {
				log.Printf("Heartbeat failed: %v", err)
				return
			}
		case <-interrupt:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

func printFrame(message []byte, raw bool) {
	var f frame
	if raw || json.Unmarshal(message, &f) != nil || f.Type != "directory" {
		fmt.Println(string(message))
		return
	}

	var v directoryView
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		fmt.Println(string(message))
		return
	}

	online := 0
	for _, fr := range v.Friends {
		if fr.Presence.Online {
			online++
		}
	}
	status := ""
	if v.Degraded {
		status = " (degraded)"
	}
	fmt.Printf("[%s v%d]%s friends=%d online=%d incoming=%d outgoing=%d\n",
		v.UID, v.Version, status, len(v.Friends), online, len(v.Incoming), len(v.Outgoing))
	for _, fr := range v.Friends {
		state := "offline"
		if fr.Presence.Online {
			state = "online"
		}
		fmt.Printf("  %-24s %s\n", fr.UID, state)
	}
}
