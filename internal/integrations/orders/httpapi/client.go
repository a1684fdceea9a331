package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithTimeout bounds every backend request. d <= 0 keeps the default.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpc.Timeout = d
	}
	return c
}

type orderBody struct {
	ID         string                 `json:"id"`
	Status     string                 `json:"status"`
	Items      []models.OrderItem     `json:"items"`
	Address    models.Address         `json:"address"`
	Driver     *models.Driver         `json:"driver"`
	Timestamps models.OrderTimestamps `json:"timestamps"`
}

type reviewsBody struct {
	Reviews []models.ReviewRecord `json:"reviews"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (models.OrderSnapshot, error) {
	var b orderBody
	if err := c.do(ctx, http.MethodGet, nil, &b, "orders", orderID); err != nil {
		return models.OrderSnapshot{}, errors.Wrap(err, "fetch order")
	}

	status := models.NormalizeStatus(b.Status)
	if status == models.OrderStatusUnknown && b.Status != "" {
		slog.Warn("unrecognized order status", "order_id", orderID, "status", b.Status)
	}
	if b.ID == "" {
		b.ID = orderID
	}
	return models.OrderSnapshot{
		ID:         b.ID,
		Status:     status,
		StatusRaw:  b.Status,
		Items:      b.Items,
		Address:    b.Address,
		Driver:     b.Driver,
		Timestamps: b.Timestamps,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func (c *Client) CreateReview(ctx context.Context, orderID string, in models.ReviewInput) (models.ReviewRecord, error) {
	var rec models.ReviewRecord
	if err := c.do(ctx, http.MethodPost, in, &rec, "orders", orderID, "review"); err != nil {
		return models.ReviewRecord{}, errors.Wrap(err, "create review")
	}
	return withOrderID(rec, orderID), nil
}

func (c *Client) UpdateReview(ctx context.Context, orderID string, in models.ReviewInput) (models.ReviewRecord, error) {
	var rec models.ReviewRecord
	if err := c.do(ctx, http.MethodPut, in, &rec, "orders", orderID, "review"); err != nil {
		return models.ReviewRecord{}, errors.Wrap(err, "update review")
	}
	return withOrderID(rec, orderID), nil
}

func (c *Client) CancelOrder(ctx context.Context, req models.CancellationRequest) error {
	body := map[string]string{"reason": req.ReasonText()}
	return errors.Wrap(c.do(ctx, http.MethodPost, body, nil, "orders", req.OrderID, "cancel"), "cancel order")
}

func (c *Client) ReportSafety(ctx context.Context, r models.SafetyReport) error {
	body := map[string]string{"type": string(r.Type), "description": strings.TrimSpace(r.Description)}
	return errors.Wrap(c.do(ctx, http.MethodPost, body, nil, "orders", r.OrderID, "safety-report"), "safety report")
}

func (c *Client) Escalate(ctx context.Context, e models.EmergencyEscalation) error {
	return errors.Wrap(c.do(ctx, http.MethodPost, nil, nil, "orders", e.OrderID, "emergency"), "emergency")
}

func (c *Client) ListReviews(ctx context.Context, userID string) ([]models.ReviewRecord, error) {
	var b reviewsBody
	if err := c.do(ctx, http.MethodGet, nil, &b, "users", userID, "reviews"); err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}
	if b.Reviews == nil {
		return []models.ReviewRecord{}, nil
	}
	return b.Reviews, nil
}

func (c *Client) do(ctx context.Context, method string, in, out any, segments ...string) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u = u.JoinPath(segments...)

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal body")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errs.Transient(errors.Wrap(err, "do request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return classify(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Transient(errors.Wrap(err, "decode"))
	}
	return nil
}

func classify(resp *http.Response) error {
	msg := readMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &errs.Error{Kind: errs.ErrNotFound, Message: msg}
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.Unauthorized(msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "The request was rejected"
		}
		return errs.ValidationFailed("", msg)
	case http.StatusConflict:
		return errs.Conflict(msg)
	case http.StatusGone:
		return &errs.Error{Kind: errs.ErrNotFound, Message: msg}
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return errs.Transient(fmt.Errorf("orders api http %d", resp.StatusCode))
	}
	if resp.StatusCode/100 == 4 {
		if msg == "" {
			msg = "The request was rejected"
		}
		return &errs.Error{Kind: errs.ErrValidationFailed, Message: msg, Cause: fmt.Errorf("orders api http %d", resp.StatusCode)}
	}
	return errs.Transient(fmt.Errorf("orders api http %d", resp.StatusCode))
}

func readMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var b errorBody
	if json.Unmarshal(raw, &b) == nil {
		if b.Message != "" {
			return b.Message
		}
		if b.Error != "" {
			return b.Error
		}
		return ""
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		return ""
	}
	return text
}

func withOrderID(rec models.ReviewRecord, orderID string) models.ReviewRecord {
	if rec.OrderID == "" {
		rec.OrderID = orderID
	}
	return rec
}
