package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// GatewayConfig configures the websocket connection to the chat server.
type GatewayConfig struct {
	URL             string
	Token           string
	BotUser         string // messages must mention this user; empty means handle everything
	AnnounceChannel string // settlement events are published here

	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// event is the wire shape of chat traffic in both directions.
type event struct {
	Type    string `json:"type"`
	User    string `json:"user,omitempty"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Gateway maintains a websocket session with the chat server, feeds
// incoming mentions through the Processor and writes replies back.
type Gateway struct {
	cfg       GatewayConfig
	processor *Processor
	log       *logrus.Entry
	dialer    *websocket.Dialer

	mu   sync.Mutex // guards conn writes
	conn *websocket.Conn

	mentionRe *regexp.Regexp
}

func NewGateway(cfg GatewayConfig, processor *Processor, log *logrus.Entry) *Gateway {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	g := &Gateway{
		cfg:       cfg,
		processor: processor,
		log:       log,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	if cfg.BotUser != "" {
		g.mentionRe = regexp.MustCompile(`<@` + regexp.QuoteMeta(cfg.BotUser) + `(?:\|[^>]*)?>\s*`)
	}
	return g
}

// Run connects and processes messages until ctx is cancelled, redialing
// with a fixed delay whenever the session drops.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		if err := g.session(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.WithError(err).Warn("chat session ended, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.cfg.ReconnectDelay):
		}
	}
}

func (g *Gateway) session(ctx context.Context) error {
	header := http.Header{}
	if g.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	conn, _, err := g.dialer.DialContext(ctx, g.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial chat server: %w", err)
	}
	g.setConn(conn)
	defer func() {
		g.setConn(nil)
		conn.Close()
	}()

	g.log.WithField("url", g.cfg.URL).Info("connected to chat server")

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go g.pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read chat message: %w", err)
		}

		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			g.log.WithError(err).Debug("skipping unparseable chat event")
			continue
		}
		if ev.Type != "message" || ev.User == "" {
			continue
		}

		text, ok := g.stripMention(ev.Text)
		if !ok {
			continue
		}

		reply, events := g.processor.Handle(ctx, ev.User, text)
		g.Announce(events)
		if reply != "" {
			g.send(event{Type: "message", Channel: ev.Channel, Text: reply})
		}
	}
}

// stripMention removes the leading bot mention and reports whether the
// message was addressed to the bot at all.
func (g *Gateway) stripMention(text string) (string, bool) {
	if g.mentionRe == nil {
		return strings.TrimSpace(text), true
	}
	if !g.mentionRe.MatchString(text) {
		return "", false
	}
	return strings.TrimSpace(g.mentionRe.ReplaceAllString(text, "")), true
}

// Announce publishes settlement event descriptions to the configured
// announce channel. Safe to call whether or not a session is up.
func (g *Gateway) Announce(events []string) {
	if g.cfg.AnnounceChannel == "" || len(events) == 0 {
		return
	}
	for _, text := range events {
		g.send(event{Type: "message", Channel: g.cfg.AnnounceChannel, Text: text})
	}
}

func (g *Gateway) send(ev event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		g.log.WithField("channel", ev.Channel).Debug("dropping outbound message, not connected")
		return
	}
	if err := g.conn.WriteJSON(ev); err != nil {
		g.log.WithError(err).Warn("write chat message failed")
	}
}

func (g *Gateway) setConn(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conn = conn
}

func (g *Gateway) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.mu.Lock()
			current := g.conn
			if current == conn {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					g.log.WithError(err).Debug("ping failed")
				}
			}
			g.mu.Unlock()
			if current != conn {
				return
			}
		}
	}
}
