package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/praxisbill/praxisbill/internal/platform/auth"
	"github.com/praxisbill/praxisbill/pkg/pagination"
)

const maxWebhookBytes = 1 << 20

type Handler struct {
	svc           *Service
	webhookSecret string
	logger        zerolog.Logger
}

// NewHandler builds the payments HTTP surface. webhookSecret may be
// empty, which disables signature verification.
func NewHandler(svc *Service, webhookSecret string, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, webhookSecret: webhookSecret, logger: logger}
}

// RegisterRoutes mounts the operator API.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.GET("/payments/events", h.ListEvents)
}

// RegisterWebhook mounts the gateway callback outside the authenticated
// API group; gateways cannot carry operator tokens.
func (h *Handler) RegisterWebhook(e *echo.Echo) {
	e.POST("/webhooks/payments", h.Webhook)
}

// Webhook ingests one gateway callback. It always answers 2xx: a non-2xx
// would put the gateway into a retry storm over an event we cannot fix.
// Anything that goes wrong is logged and the body is dropped or parked.
func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		h.logger.Warn().Err(err).Msg("payment webhook body unreadable")
		return c.NoContent(http.StatusOK)
	}

	if h.webhookSecret != "" {
		if !verifySignature(body, h.webhookSecret, c.Request().Header.Get("X-Signature")) {
			h.logger.Warn().
				Str("remote", c.RealIP()).
				Msg("payment webhook signature invalid, event ignored")
			return c.NoContent(http.StatusOK)
		}
	}

	in, err := parseWebhookBody(c.Request().Header.Get(echo.HeaderContentType), body)
	if err != nil {
		h.logger.Error().Err(err).
			Str("payload_excerpt", excerpt(body)).
			Msg("payment webhook unparseable, event dropped")
		return c.NoContent(http.StatusOK)
	}

	if _, inserted, err := h.svc.Process(c.Request().Context(), in); err != nil {
		h.logger.Error().Err(err).
			Str("transaction_id", in.TransactionID).
			Str("payload_excerpt", excerpt(body)).
			Msg("payment event processing failed")
	} else if !inserted {
		h.logger.Debug().
			Str("transaction_id", in.TransactionID).
			Msg("payment event replayed, already recorded")
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) ListEvents(c echo.Context) error {
	pg := pagination.FromContext(c)
	unmatched, _ := strconv.ParseBool(c.QueryParam("unmatched"))
	items, total, err := h.svc.ListEvents(c.Request().Context(), unmatched, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// signPayload computes the hex-encoded HMAC-SHA256 of payload under secret.
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks a hex-encoded HMAC-SHA256 signature, with or
// without the conventional "sha256=" prefix.
func verifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return false
	}
	expected := signPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// parseWebhookBody extracts the event fields from a JSON or form-encoded
// payload. Field names are matched permissively because every gateway
// spells them differently.
func parseWebhookBody(contentType string, body []byte) (Incoming, error) {
	ct, _, _ := mime.ParseMediaType(contentType)
	if ct == echo.MIMEApplicationForm {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return Incoming{}, fmt.Errorf("parse form body: %w", err)
		}
		return assembleIncoming(func(keys ...string) string {
			for _, k := range keys {
				if v := values.Get(k); v != "" {
					return v
				}
			}
			return ""
		}, body)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Incoming{}, fmt.Errorf("parse json body: %w", err)
	}
	return assembleIncoming(func(keys ...string) string {
		for _, k := range keys {
			v, ok := payload[k]
			if !ok {
				continue
			}
			switch t := v.(type) {
			case string:
				if t != "" {
					return t
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			case json.Number:
				return t.String()
			}
		}
		return ""
	}, body)
}

func assembleIncoming(field func(keys ...string) string, raw []byte) (Incoming, error) {
	in := Incoming{
		TransactionID: field("transactionId", "transaction_id", "id"),
		Status:        field("status", "state", "event"),
		ReferenceID:   field("referenceId", "reference_id", "reference", "invoiceNumber", "invoice_number"),
		Currency:      field("currency"),
		RawPayload:    raw,
	}
	if in.TransactionID == "" {
		return Incoming{}, fmt.Errorf("no transaction id in payload")
	}
	amount, err := parseAmount(field("amount", "settledAmount", "settled_amount", "amountPaid", "amount_paid"))
	if err != nil {
		return Incoming{}, err
	}
	in.SettledAmount = amount
	return in, nil
}

// parseAmount accepts minor units ("24500") or a decimal string
// ("245.00"); gateways disagree on which they send. A decimal separator
// marks the value as major units.
func parseAmount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if strings.ContainsAny(s, ".,") {
		f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable amount %q", s)
		}
		return int64(math.Round(f * 100)), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable amount %q", s)
	}
	return n, nil
}

func excerpt(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
