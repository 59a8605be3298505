// Package api implements the Webhook/API Surface (spec §4.8): stateless
// gin handlers that delegate to the Store, Campaign Engine, Telephony
// Gateway, Termination Arbiter, and Media Bridge.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxbridge/callengine/internal/aiprovider"
	"github.com/voxbridge/callengine/internal/arbiter"
	"github.com/voxbridge/callengine/internal/bridge"
	"github.com/voxbridge/callengine/internal/campaign"
	"github.com/voxbridge/callengine/internal/config"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/metrics"
	"github.com/voxbridge/callengine/internal/store"
	"github.com/voxbridge/callengine/internal/telephony"
)

// Deps bundles the components every handler group is constructed from,
// mirroring the teacher's New...Api(cfg, logger, deps...) constructor shape.
type Deps struct {
	Config   *config.AppConfig
	Log      logging.Logger
	Store    store.Store
	Bus      *eventbus.Bus
	Gateway  telephony.Gateway
	AI       aiprovider.Client
	Engine   *campaign.Engine
	Arbiter  *arbiter.Arbiter
	Bridge   *bridge.Bridge
	Hub      http.Handler
}

// New builds the gin.Engine serving the HTTP surface, webhooks, and the
// two websocket upgrade endpoints (real-time hub, media bridge).
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.InstrumentHandler())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Any("/outbound-media-stream", gin.WrapH(d.Bridge))
	r.Any("/socket.io/*any", gin.WrapH(d.Hub))

	calls := &callsAPI{d}
	campaigns := &campaignsAPI{d}
	recordings := &recordingsAPI{d}
	webhooks := &webhooksAPI{d}

	protected := r.Group("/api")
	protected.Use(bearerAuth(d.Config.APIKey))
	{
		protected.POST("/outbound-call", calls.CreateOutboundCall)

		protected.POST("/campaigns", campaigns.Create)
		protected.GET("/campaigns", campaigns.List)
		protected.GET("/campaigns/:id", campaigns.Get)
		protected.PUT("/campaigns/:id", campaigns.Update)
		protected.DELETE("/campaigns/:id", campaigns.Delete)
		protected.POST("/campaigns/:id/start", campaigns.Start)
		protected.POST("/campaigns/:id/pause", campaigns.Pause)
		protected.POST("/campaigns/:id/resume", campaigns.Resume)
		protected.POST("/campaigns/:id/stop", campaigns.Stop)
		protected.POST("/campaigns/:id/contacts", campaigns.AddContacts)
		protected.POST("/campaigns/start-from-csv", campaigns.StartFromCSV)

		protected.GET("/calls", calls.List)
		protected.GET("/calls/:id", calls.Get)
		protected.GET("/calls/:id/events", calls.ListEvents)
		protected.GET("/calls/:id/transcript", calls.GetTranscript)
		protected.POST("/calls/:id/terminate", calls.Terminate)

		protected.GET("/recordings/:id", recordings.Get)
		protected.GET("/media/recordings/:id", recordings.Stream)
	}

	r.POST("/call-status-callback", webhooks.CallStatus)
	r.POST("/amd-status-callback", webhooks.AMDStatus)
	r.POST("/recording-status-callback", webhooks.RecordingStatus)
	r.POST("/quality-insights-callback", webhooks.QualityInsights)
	r.POST("/fallback-twiml", webhooks.FallbackTwiML)
	r.POST("/webhooks/elevenlabs", webhooks.ElevenLabs)

	return r
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
