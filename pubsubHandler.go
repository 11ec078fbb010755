package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/pos_backend/config"
)

// PubSubMessage is the push envelope delivered by Pub/Sub.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// fiscalPubSubHandler authorizes the sale named by a pushed FiscalMessage.
// Malformed messages are acked so they do not loop; processing failures
// answer 500 so Pub/Sub redelivers.
func (a *app) fiscalPubSubHandler(c *gin.Context) {
	var msg PubSubMessage
	logger := a.logger

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		config.LogError(logger, "pubsubHandler.go", "fiscalPubSubHandler", "io.ReadAll", nil, err)
		c.Status(http.StatusNoContent)
		return
	}

	// byte slice unmarshalling handles base64 decoding.
	if err := json.Unmarshal(body, &msg); err != nil {
		config.LogError(logger, "pubsubHandler.go", "fiscalPubSubHandler", "Unmarshal body", string(body), err)
		c.Status(http.StatusNoContent)
		return
	}

	var m config.FiscalMessage
	if err := json.Unmarshal(msg.Message.Data, &m); err != nil {
		config.LogError(logger, "pubsubHandler.go", "fiscalPubSubHandler", "Unmarshal pubsub message", string(msg.Message.Data), err)
		c.Status(http.StatusNoContent)
		return
	}

	if m.ID <= 0 || m.SaleId <= 0 {
		config.LogError(logger, "pubsubHandler.go", "fiscalPubSubHandler", "Invalid pubsub message (missing required fields)", m, fmt.Errorf("id/sale_id required"))
		c.Status(http.StatusNoContent)
		return
	}

	if m.CorrelationId == "" {
		m.CorrelationId = msg.Message.ID
	}

	// Redis lock only avoids two deliveries racing to the provider; the
	// idempotency key and the database fiscal lock are what serialize.
	if redisLock := config.GetRedisLock(); redisLock != nil {
		lock, err := redisLock.Obtain(c.Request.Context(), fmt.Sprintf("lock:fiscal:sale:%d", m.SaleId), 30*time.Second, nil)
		switch {
		case err == redislock.ErrNotObtained:
			logger.WithFields(logrus.Fields{
				"field":      "fiscalPubSubHandler",
				"sale_id":    m.SaleId,
				"message_id": msg.Message.ID,
			}).Warn("sale is being authorized by another delivery; asking for redelivery")
			c.Status(http.StatusInternalServerError)
			return
		case err != nil:
			logger.WithFields(logrus.Fields{
				"field":   "fiscalPubSubHandler",
				"sale_id": m.SaleId,
			}).Warn("redis lock unavailable; proceeding without it: " + err.Error())
		default:
			defer lock.Release(c.Request.Context())
		}
	}

	if err := a.ledger.ProcessFiscalMessage(c.Request.Context(), m); err != nil {
		logger.WithFields(logrus.Fields{
			"field":          "fiscalPubSubHandler",
			"sale_id":        m.SaleId,
			"outbox_id":      m.ID,
			"message_id":     msg.Message.ID,
			"correlation_id": m.CorrelationId,
		}).Error("pubsub processing failed: " + err.Error())
		// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Status(http.StatusNoContent)
}
