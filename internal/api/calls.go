package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/store"
	"github.com/voxbridge/callengine/internal/telephony"
)

type callsAPI struct {
	Deps
}

type outboundCallRequest struct {
	To           string `json:"to" binding:"required"`
	From         string `json:"from"`
	Region       string `json:"region"`
	Prompt       string `json:"prompt"`
	FirstMessage string `json:"firstMessage"`
	Name         string `json:"name"`
	CampaignID   string `json:"campaignId"`
	ContactID    string `json:"contactId"`
}

type outboundCallResponse struct {
	Success bool   `json:"success"`
	CallID  string `json:"callId"`
}

// CreateOutboundCall dials a single call outside of any campaign cycle
// (spec §6.1 POST /api/outbound-call).
func (a *callsAPI) CreateOutboundCall(c *gin.Context) {
	var req outboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.New(apperrors.KindInvalidInput, "api.CreateOutboundCall", err))
		return
	}

	callReq := telephony.CreateCallRequest{
		To:                   req.To,
		From:                 req.From,
		CampaignID:           req.CampaignID,
		ContactID:            req.ContactID,
		PromptOverride:       req.Prompt,
		FirstMessageOverride: req.FirstMessage,
		Name:                 req.Name,
		StatusCallbackURL:    telephony.WebhookURL(a.Config.ServerURL, "/call-status-callback"),
		AMDStatusCallbackURL: telephony.WebhookURL(a.Config.ServerURL, "/amd-status-callback"),
		RecordingCallbackURL: telephony.WebhookURL(a.Config.ServerURL, "/recording-status-callback"),
		StreamURL:            telephony.StreamURL(a.Config.ServerURL),
	}

	result, err := a.Gateway.CreateCall(c.Request.Context(), callReq)
	if err != nil {
		respondErr(c, err)
		return
	}

	call := &models.Call{
		ID:        result.ProviderCallID,
		State:     models.CallInitiated,
		Direction: "outbound",
		To:        req.To,
		From:      req.From,
	}
	if req.CampaignID != "" {
		call.CampaignID = &req.CampaignID
	}
	if req.ContactID != "" {
		call.ContactID = &req.ContactID
	}
	if err := a.Store.CreateCall(c.Request.Context(), call); err != nil {
		a.Log.Warnw("api: failed to persist outbound call", "callId", result.ProviderCallID, "error", err)
	}

	c.JSON(http.StatusOK, outboundCallResponse{Success: true, CallID: result.ProviderCallID})
}

// List handles GET /api/calls, optionally filtered by campaignId/contactId.
func (a *callsAPI) List(c *gin.Context) {
	filter := store.CallFilter{
		CampaignID:  c.Query("campaignId"),
		ContactID:   c.Query("contactId"),
		NonTerminal: c.Query("nonTerminal") == "true",
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil {
		filter.Offset = offset
	}

	calls, err := a.Store.ListCalls(c.Request.Context(), filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

func (a *callsAPI) Get(c *gin.Context) {
	call, err := a.Store.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (a *callsAPI) ListEvents(c *gin.Context) {
	events, err := a.Store.ListCallEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (a *callsAPI) GetTranscript(c *gin.Context) {
	t, err := a.Store.GetTranscript(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Terminate ends a bridged call from an operator request (spec §4.6
// api_request signal), routed through the Bridge's registry.
func (a *callsAPI) Terminate(c *gin.Context) {
	id := c.Param("id")
	if ok := a.Bridge.Terminate(c.Request.Context(), id); !ok {
		respondErr(c, apperrors.New(apperrors.KindNotFound, "api.Terminate", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func respondErr(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), apperrors.ToEnvelope(err))
}
