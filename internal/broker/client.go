// internal/broker/client.go
package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"exitwatch/internal/config"
	"exitwatch/internal/eventlog"
)

const (
	endpointLogin        = "QuickAuth"
	endpointLogout       = "Logout"
	endpointPositionBook = "PositionBook"
	endpointGetQuotes    = "GetQuotes"
	endpointPlaceOrder   = "PlaceOrder"

	requestTimeout    = 10 * time.Second
	maxTransientTries = 3
)

// Client talks to the vendor REST API. Every failure is caught here, written
// to the event log, and converted to a sentinel return per the error policy.
type Client struct {
	baseURL  string
	exchange string
	creds    config.Credentials
	http     *http.Client
	events   *eventlog.Log
	logger   *zap.Logger
	stream   *TouchlineStream

	mu    sync.RWMutex
	token string
}

// NewClient constructs a broker client. The stream is optional; when set,
// GetQuote prefers fresh streamed touchline data over a REST round trip.
func NewClient(cfg *config.Config, events *eventlog.Log, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.APIURL, "/") + "/",
		exchange: cfg.Exchange,
		creds:    cfg.Credentials,
		http:     &http.Client{Timeout: requestTimeout},
		events:   events,
		logger:   logger.Named("broker"),
	}
}

// AttachStream wires a touchline stream into quote retrieval.
func (c *Client) AttachStream(stream *TouchlineStream) {
	c.stream = stream
}

// SessionToken returns the current session token, empty before login.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login generates a one-time code from the shared secret and submits the full
// credential set. Returns whether the broker reported success; the reason for
// a failure is logged, not returned.
func (c *Client) Login(ctx context.Context) bool {
	c.events.Info("Generating OTP for login.")
	code, err := totp.GenerateCode(c.creds.TOTPSecret, time.Now())
	if err != nil {
		c.events.Error(fmt.Sprintf("Failed to generate OTP: %v", err))
		return false
	}
	c.events.Info("OTP generated successfully.")

	c.events.Info("Attempting to log in to broker API.")
	payload := map[string]string{
		"uid":        c.creds.UserID,
		"pwd":        sha256Hex(c.creds.Password),
		"factor2":    code,
		"vc":         c.creds.VendorCode,
		"appkey":     sha256Hex(c.creds.UserID + "|" + c.creds.APIKey),
		"imei":       c.creds.IMEI,
		"source":     "API",
		"apkversion": "1.0.0",
	}

	body, err := c.post(ctx, endpointLogin, payload, false)
	if err != nil {
		c.events.Error(fmt.Sprintf("Login request failed: %v", err))
		return false
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.events.Error(fmt.Sprintf("Login response malformed: %v", err))
		return false
	}
	if resp.Stat != statOK {
		c.events.Failed(fmt.Sprintf("Login failed: %s", resp.ErrorMessage))
		return false
	}

	c.mu.Lock()
	c.token = resp.SessionToken
	c.mu.Unlock()

	c.events.Success("Login successful.")
	return true
}

// ListPositions returns the broker-reported open positions. On any error it
// returns an empty slice and logs the cause; callers cannot distinguish "no
// positions" from a failed fetch, but the event log can.
func (c *Client) ListPositions(ctx context.Context) []Position {
	payload := map[string]string{
		"uid":   c.creds.UserID,
		"actid": c.creds.UserID,
	}

	body, err := c.post(ctx, endpointPositionBook, payload, true)
	if err != nil {
		c.events.Error(fmt.Sprintf("Error fetching positions: %v", err))
		return nil
	}

	// An empty book comes back as an error object, not an empty array. Only
	// the vendor's "no data" emsg means empty; any other rejection (expired
	// session, bad account) is a real fetch failure.
	var positions []Position
	if err := json.Unmarshal(body, &positions); err != nil {
		var sentinel struct {
			Stat         string `json:"stat"`
			ErrorMessage string `json:"emsg"`
		}
		if jerr := json.Unmarshal(body, &sentinel); jerr == nil && sentinel.Stat != statOK {
			if strings.Contains(strings.ToLower(sentinel.ErrorMessage), "no data") {
				c.logger.Debug("Position book empty", zap.String("emsg", sentinel.ErrorMessage))
				return nil
			}
			c.events.Error(fmt.Sprintf("Error fetching positions: %s", sentinel.ErrorMessage))
			return nil
		}
		c.events.Error(fmt.Sprintf("Error fetching positions: %v", err))
		return nil
	}

	// Keep the opaque vendor fields around for display/debugging.
	var raws []map[string]interface{}
	if err := json.Unmarshal(body, &raws); err == nil && len(raws) == len(positions) {
		for i := range positions {
			positions[i].Raw = raws[i]
		}
	}

	return positions
}

// GetQuote returns the last traded price for a symbol. The second return is
// false when the fetch failed; the failure itself is logged.
func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, bool) {
	if c.stream != nil {
		if q, ok := c.stream.Fresh(symbol); ok {
			return q, true
		}
	}

	payload := map[string]string{
		"uid":   c.creds.UserID,
		"exch":  c.exchange,
		"token": symbol,
	}

	body, err := c.post(ctx, endpointGetQuotes, payload, true)
	if err != nil {
		c.events.Error(fmt.Sprintf("Error fetching quotes for %s: %v", symbol, err))
		return Quote{}, false
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.events.Error(fmt.Sprintf("Error fetching quotes for %s: %v", symbol, err))
		return Quote{}, false
	}
	if resp.Stat != statOK {
		c.events.Error(fmt.Sprintf("Error fetching quotes: %s", resp.ErrorMessage))
		return Quote{}, false
	}

	price, err := parsePrice(resp.LastPrice)
	if err != nil {
		c.events.Error(fmt.Sprintf("Bad last price for %s: %v", symbol, err))
		return Quote{}, false
	}

	return Quote{
		Symbol:    symbol,
		LastPrice: price,
		Time:      time.Now(),
	}, true
}

// PlaceOrder submits a market order with the fixed intraday parameters.
// Fire-and-forget: success or failure is logged, nothing is returned.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, quantity int, side OrderSide) {
	payload := map[string]string{
		"uid":      c.creds.UserID,
		"actid":    c.creds.UserID,
		"trantype": string(side),
		"prd":      productTypeIntraday,
		"exch":     c.exchange,
		"tsym":     symbol,
		"qty":      fmt.Sprintf("%d", quantity),
		"dscqty":   "0",
		"prctyp":   priceTypeMarket,
		"prc":      "0",
		"ret":      retentionDay,
		"remarks":  "exitwatch-" + uuid.New().String()[:8],
	}

	body, err := c.post(ctx, endpointPlaceOrder, payload, true)
	if err != nil {
		c.events.Error(fmt.Sprintf("Error placing order: %v", err))
		return
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.events.Error(fmt.Sprintf("Error placing order: %v", err))
		return
	}
	if resp.Stat != statOK {
		c.events.Failed(fmt.Sprintf("Order placement failed: %s", resp.ErrorMessage))
		return
	}

	c.events.Success(fmt.Sprintf("Order placed successfully: %s %s x%d (order %s)",
		symbol, side, quantity, resp.OrderNumber))
}

// Logout ends the broker session.
func (c *Client) Logout(ctx context.Context) {
	payload := map[string]string{"uid": c.creds.UserID}
	if _, err := c.post(ctx, endpointLogout, payload, true); err != nil {
		c.events.Error(fmt.Sprintf("Logout failed: %v", err))
		return
	}

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	c.events.Info("Logged out from broker API.")
}

// post sends the vendor's jData/jKey form encoding. Transient transport
// failures get a short bounded retry; HTTP 4xx and vendor-level rejections do
// not (those surface to the caller unchanged).
func (c *Client) post(ctx context.Context, endpoint string, jData map[string]string, withSession bool) ([]byte, error) {
	data, err := json.Marshal(jData)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	form := "jData=" + string(data)
	if withSession {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token == "" {
			return nil, fmt.Errorf("no active session")
		}
		form += "&jKey=" + token
	}

	target, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("build URL: %w", err)
	}

	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "text/plain")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: read body: %w", endpoint, err)
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%s: server error %d", endpoint, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("%s: status %d", endpoint, resp.StatusCode))
		}

		return body, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTransientTries),
	)
}

func parsePrice(s string) (float64, error) {
	price, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return price, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
