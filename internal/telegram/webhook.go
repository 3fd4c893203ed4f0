package telegram

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/relay-bot/internal/relay"
	"go.uber.org/zap"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const shutdownTimeout = 5 * time.Second

// WebhookOptions configures the webhook receiver.
type WebhookOptions struct {
	PublicURL  string // externally reachable base URL
	Secret     string // path segment and secret_token
	ListenAddr string // defaults to ":10000"
}

// Webhook receives updates pushed by Telegram over HTTPS.
type Webhook struct {
	api        *tgbotapi.BotAPI
	classifier Classifier
	opts       WebhookOptions
	logger     *zap.Logger
}

func NewWebhook(api *tgbotapi.BotAPI, classifier Classifier, opts WebhookOptions, logger *zap.Logger) (*Webhook, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("telegram: webhook secret is required")
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":10000"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{api: api, classifier: classifier, opts: opts, logger: logger}, nil
}

// URL is the address registered with Telegram.
func (w *Webhook) URL() string {
	return strings.TrimRight(w.opts.PublicURL, "/") + "/webhook/" + w.opts.Secret
}

// Listen registers the webhook, starts the HTTP server and returns the
// event channel. The server shuts down and the channel closes when ctx is
// cancelled.
func (w *Webhook) Listen(ctx context.Context) (<-chan relay.Event, error) {
	if w.api != nil {
		params := tgbotapi.Params{}
		params.AddNonEmpty("url", w.URL())
		params.AddNonEmpty("secret_token", w.opts.Secret)
		params["allowed_updates"] = allowedUpdates
		if err := makeRequest(ctx, w.api, "setWebhook", params, nil); err != nil {
			return nil, fmt.Errorf("telegram: set webhook: %w", err)
		}
	}

	out := make(chan relay.Event, 100)
	srv := &http.Server{
		Addr:              w.opts.ListenAddr,
		Handler:           w.Handler(out),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			w.logger.Error("Webhook server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		w.shutdown(srv, out, shutdownTimeout)
	}()

	w.logger.Info("Webhook listening", zap.String("addr", w.opts.ListenAddr))
	return out, nil
}

// shutdown stops srv and closes out once no handler can send on it. When
// handlers are still running after timeout their connections are dropped
// and out is left open.
func (w *Webhook) shutdown(srv *http.Server, out chan relay.Event, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		w.logger.Warn("Webhook server shutdown", zap.Error(err))
		srv.Close()
		return
	}
	close(out)
}

// Handler returns the HTTP handler that decodes updates into out.
func (w *Webhook) Handler(out chan<- relay.Event) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.POST("/webhook/:secret", func(c *gin.Context) {
		if !w.authorized(c) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		var update Update
		if err := c.ShouldBindJSON(&update); err != nil {
			w.logger.Warn("Malformed update", zap.Error(err))
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		if ev, ok := w.classifier.Classify(update); ok {
			select {
			case out <- ev:
			case <-c.Request.Context().Done():
				c.AbortWithStatus(http.StatusServiceUnavailable)
				return
			}
		}
		c.Status(http.StatusOK)
	})
	return router
}

func (w *Webhook) authorized(c *gin.Context) bool {
	secret := []byte(w.opts.Secret)
	return subtle.ConstantTimeCompare([]byte(c.Param("secret")), secret) == 1 &&
		subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretHeader)), secret) == 1
}
