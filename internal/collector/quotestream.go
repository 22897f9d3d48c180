package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/ticker"
)

const (
	qsReadBufferSize  = 64 * 1024
	qsWriteBufferSize = 16 * 1024
	qsMaxMessageSize  = 4 * 1024 * 1024
	qsReconnectDelay  = 5 * time.Second
)

var heartbeatPattern = regexp.MustCompile(`^~h~\d+$`)

// quoteFields are the value keys requested from the provider for every
// subscribed symbol.
var quoteFields = []string{"ch", "chp", "lp", "description", "currency_code", "rchp", "rtc"}

// QuoteStream maintains a persistent websocket to a quote provider and
// emits PriceMove alerts when a symbol's change percent crosses
// thresholdPct in magnitude.
type QuoteStream struct {
	dialURL     string
	authToken   string
	symbols     []string
	thresholdPct float64
	resolver    *ticker.Resolver
	logger      *slog.Logger
	headers     http.Header

	mu   sync.Mutex
	conn *websocket.Conn

	quoteSession string

	subMu      sync.Mutex
	subscribed map[string]bool

	out    chan alert.Alert
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// QuoteStreamOption configures a QuoteStream.
type QuoteStreamOption func(*QuoteStream)

// WithQuoteStreamLogger attaches a logger.
func WithQuoteStreamLogger(l *slog.Logger) QuoteStreamOption {
	return func(q *QuoteStream) { q.logger = l }
}

// WithQuoteStreamHeaders sets the headers sent on the upgrade request
// (Origin/User-Agent are commonly required by quote providers).
func WithQuoteStreamHeaders(h http.Header) QuoteStreamOption {
	return func(q *QuoteStream) { q.headers = h }
}

// NewQuoteStream builds a QuoteStream that dials dialURL and subscribes
// to symbols once connected.
func NewQuoteStream(dialURL, authToken string, symbols []string, thresholdPct float64, resolver *ticker.Resolver, opts ...QuoteStreamOption) *QuoteStream {
	q := &QuoteStream{
		dialURL:      dialURL,
		authToken:    authToken,
		symbols:      symbols,
		thresholdPct: thresholdPct,
		resolver:     resolver,
		logger:       slog.Default(),
		subscribed:   make(map[string]bool),
		out:          make(chan alert.Alert, 64),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *QuoteStream) Name() string { return "quote_stream" }

func (q *QuoteStream) Start(ctx context.Context) error {
	if q.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go q.run(ctx)
	return nil
}

func (q *QuoteStream) Stop() {
	if q.cancel == nil {
		return
	}
	q.cancel()

	q.mu.Lock()
	if q.conn != nil {
		q.conn.Close()
	}
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel = nil
}

func (q *QuoteStream) Produce() <-chan alert.Alert { return q.out }

func (q *QuoteStream) run(ctx context.Context) {
	defer q.wg.Done()
	defer close(q.out)

	for {
		if err := q.connectAndServe(ctx); err != nil && ctx.Err() == nil {
			q.logger.Warn("quote stream disconnected", "error", err)
		}

		if ctx.Err() != nil {
			return
		}

		q.logger.Info("reconnecting to quote provider", "delay", qsReconnectDelay)
		if !sleepCtx(ctx, qsReconnectDelay) {
			return
		}
	}
}

func (q *QuoteStream) connectAndServe(ctx context.Context) error {
	dialer := websocket.Dialer{
		ReadBufferSize:  qsReadBufferSize,
		WriteBufferSize: qsWriteBufferSize,
	}

	conn, _, err := dialer.DialContext(ctx, q.dialURL, q.headers)
	if err != nil {
		return fmt.Errorf("dial quote provider: %w", err)
	}
	conn.SetReadLimit(qsMaxMessageSize)

	q.mu.Lock()
	q.conn = conn
	q.mu.Unlock()

	q.logger.Info("connected to quote provider", "url", q.dialURL)

	if err := q.handshake(); err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	return q.readLoop(ctx, conn)
}

func (q *QuoteStream) handshake() error {
	quoteSession := "qs_" + randomLowercase(12)
	chartSession := "cs_" + randomLowercase(12)

	if err := q.send("set_auth_token", []any{q.authToken}); err != nil {
		return err
	}
	if err := q.send("chart_create_session", []any{chartSession, ""}); err != nil {
		return err
	}
	if err := q.send("quote_create_session", []any{quoteSession}); err != nil {
		return err
	}

	fieldArgs := make([]any, 0, len(quoteFields)+1)
	fieldArgs = append(fieldArgs, quoteSession)
	for _, f := range quoteFields {
		fieldArgs = append(fieldArgs, f)
	}
	if err := q.send("quote_set_fields", fieldArgs); err != nil {
		return err
	}

	q.quoteSession = quoteSession

	q.subMu.Lock()
	restore := make([]string, 0, len(q.subscribed))
	for sym := range q.subscribed {
		restore = append(restore, sym)
	}
	q.subscribed = make(map[string]bool)
	q.subMu.Unlock()

	symbols := q.symbols
	if len(restore) > 0 {
		symbols = restore
	}

	for _, sym := range symbols {
		if err := q.subscribeSymbol(sym); err != nil {
			return err
		}
	}
	return nil
}

func (q *QuoteStream) subscribeSymbol(symbol string) error {
	if err := q.send("quote_add_symbols", []any{q.quoteSession, symbol, map[string]any{"flags": []string{"force_permission"}}}); err != nil {
		return err
	}
	q.subMu.Lock()
	q.subscribed[symbol] = true
	q.subMu.Unlock()
	q.logger.Info("subscribed to symbol", "symbol", symbol)
	return nil
}

func (q *QuoteStream) send(method string, params []any) error {
	payload, err := json.Marshal(map[string]any{"m": method, "p": params})
	if err != nil {
		return err
	}
	framed := fmt.Sprintf("~m~%d~m~%s", len(payload), payload)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil {
		return fmt.Errorf("no active connection")
	}
	return q.conn.WriteMessage(websocket.TextMessage, []byte(framed))
}

func (q *QuoteStream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		q.handleFrame(ctx, string(data))

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handleFrame splits a raw websocket frame on the "~m~<len>~m~" prefix
// pattern and dispatches each part, echoing heartbeats verbatim.
func (q *QuoteStream) handleFrame(ctx context.Context, raw string) {
	for _, part := range splitFrames(raw) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if heartbeatPattern.MatchString(part) {
			q.mu.Lock()
			if q.conn != nil {
				_ = q.conn.WriteMessage(websocket.TextMessage, []byte(part))
			}
			q.mu.Unlock()
			continue
		}

		var msg struct {
			M string            `json:"m"`
			P []json.RawMessage `json:"p"`
		}
		if err := json.Unmarshal([]byte(part), &msg); err != nil {
			continue
		}
		if msg.M != "qsd" || len(msg.P) < 2 {
			continue
		}

		var payload struct {
			Symbol string         `json:"n"`
			Values map[string]any `json:"v"`
		}
		if err := json.Unmarshal(msg.P[1], &payload); err != nil {
			continue
		}
		if payload.Symbol == "" || payload.Values == nil {
			continue
		}

		q.processQuote(ctx, payload.Symbol, payload.Values)
	}
}

var frameDelimiter = regexp.MustCompile(`~m~\d+~m~`)

func splitFrames(raw string) []string {
	return frameDelimiter.Split(raw, -1)
}

func (q *QuoteStream) processQuote(ctx context.Context, symbol string, values map[string]any) {
	changePct, ok := numericValue(values["chp"])
	if !ok {
		return
	}
	if math.Abs(changePct) < q.thresholdPct {
		return
	}

	tk := symbol
	if idx := strings.LastIndex(symbol, ":"); idx >= 0 {
		tk = symbol[idx+1:]
	}

	company := tk
	if q.resolver != nil {
		if name := q.resolver.TickerToName(ctx, tk); name != "" {
			company = name
		}
	}

	direction := "UP"
	if changePct < 0 {
		direction = "DOWN"
	}

	priority := alert.PriorityMedium
	if math.Abs(changePct) > 20 {
		priority = alert.PriorityHigh
	}

	price, _ := numericValue(values["lp"])

	id := fmt.Sprintf("tv_%s_%s_%d", tk, time.Now().UTC().Format("20060102150405"), int(math.Abs(changePct*100)))

	al := alert.Alert{
		ID:        id,
		Kind:      alert.KindPriceMove,
		Priority:  priority,
		Ticker:    tk,
		Company:   company,
		Title:     fmt.Sprintf("Stock Move: %s %s %.2f%%", tk, direction, math.Abs(changePct)),
		Summary:   alert.TruncateSummary(fmt.Sprintf("%s (%s) moved %.2f%%. Price: %v", company, tk, changePct, price)),
		URL:       fmt.Sprintf("https://www.tradingview.com/symbols/%s/", symbol),
		Source:    "live quote stream",
		Timestamp: time.Now().UTC(),
		Raw:       values,
	}

	select {
	case q.out <- al:
	case <-ctx.Done():
	}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

const lowercaseAlphabet = "abcdefghijklmnopqrstuvwxyz"

func randomLowercase(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = lowercaseAlphabet[rand.Intn(len(lowercaseAlphabet))]
	}
	return string(b)
}
