package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/footprint/internal/domain/scans"
)

// Header names sent with every delivery.
const (
	HeaderEvent     = "X-Footprint-Event"
	HeaderDelivery  = "X-Footprint-Delivery"
	HeaderTimestamp = "X-Footprint-Timestamp"
	HeaderSignature = "X-Footprint-Signature"
)

// Webhook posts scan notifications to one configured URL. When a secret is
// set the body is signed with HMAC-SHA256 over "timestamp.body".
type Webhook struct {
	URL    string
	Secret string
	HTTP   *http.Client
	now    func() time.Time
}

func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		URL:    url,
		Secret: secret,
		HTTP:   &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

type payload struct {
	Event      string     `json:"event"`
	DeliveryID string     `json:"delivery_id"`
	SentAt     time.Time  `json:"sent_at"`
	Scan       scans.Scan `json:"scan"`
}

func (w *Webhook) Notify(ctx context.Context, n scans.Notification) error {
	sent := w.now().UTC()
	p := payload{Event: n.Event, DeliveryID: uuid.NewString(), SentAt: sent, Scan: n.Scan}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(sent.Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, n.Event)
	req.Header.Set(HeaderDelivery, p.DeliveryID)
	req.Header.Set(HeaderTimestamp, ts)
	if w.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(w.Secret, ts, body))
	}

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "timestamp.body".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value produced by Sign.
func Verify(secret, timestamp string, body []byte, header string) bool {
	want := "sha256=" + Sign(secret, timestamp, body)
	return hmac.Equal([]byte(want), []byte(header))
}
