package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"minicrm/internal/domain"
	"minicrm/internal/observability"
	sqsqueue "minicrm/internal/queue/sqs"
	"minicrm/internal/util"
)

type EventQueue interface {
	Enqueue(ctx context.Context, ev sqsqueue.DeliveryEvent) error
}

// Webhook receives delivery-channel status callbacks and hands them to the
// queue; the webhook-processor applies them to storage.
type Webhook struct {
	Queue         EventQueue
	SigningSecret string
}

func (wh *Webhook) Register(r *mux.Router) {
	r.HandleFunc("/v1/webhooks/channel/status", wh.handleChannelStatus).Methods(http.MethodPost)
}

// VerifySignature checks a hex HMAC-SHA256 of the request body against the
// shared channel secret.
func VerifySignature(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(provided))
}

type channelCallback struct {
	LogID     int64  `json:"logId"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode,omitempty"`
}

func (wh *Webhook) handleChannelStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if !VerifySignature(wh.SigningSecret, body, r.Header.Get("X-Signature")) {
		http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
		return
	}

	var cb channelCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if cb.LogID <= 0 {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	// Closed status set; anything else is rejected at the boundary.
	if !domain.ValidStatus(cb.Status) {
		http.Error(w, ErrInvalidStatus, http.StatusBadRequest)
		return
	}

	observability.WebhookEvents.WithLabelValues(cb.Status).Inc()

	if err := wh.Queue.Enqueue(r.Context(), sqsqueue.DeliveryEvent{
		LogID:      cb.LogID,
		Status:     cb.Status,
		ErrorCode:  cb.ErrorCode,
		ReceivedAt: util.NowUTC(),
	}); err != nil {
		slog.Error("webhook enqueue delivery event failed", "err", err, "log_id", cb.LogID, "status", cb.Status)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
