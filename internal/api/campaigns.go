package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/config"
	"github.com/voxbridge/callengine/internal/ids"
	"github.com/voxbridge/callengine/internal/models"
)

type campaignsAPI struct {
	Deps
}

type createCampaignRequest struct {
	Name     string                  `json:"name" binding:"required"`
	Settings models.CampaignSettings `json:"settings"`
}

func (a *campaignsAPI) Create(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.New(apperrors.KindInvalidInput, "api.campaigns.Create", err))
		return
	}
	campaign := &models.Campaign{
		ID:       ids.New(),
		Name:     req.Name,
		Status:   models.CampaignDraft,
		Settings: applyDefaultSettings(a.Config, req.Settings),
	}
	if err := a.Store.CreateCampaign(c.Request.Context(), campaign); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// applyDefaultSettings fills unset dialing parameters from process config
// (spec §6.5 defaults: callDelayMs=5000, maxConcurrentCalls=5).
func applyDefaultSettings(cfg *config.AppConfig, s models.CampaignSettings) models.CampaignSettings {
	if s.CallDelayMs <= 0 {
		s.CallDelayMs = cfg.CallDelayMs
	}
	if s.MaxConcurrentCalls <= 0 {
		s.MaxConcurrentCalls = cfg.MaxConcurrentCalls
	}
	if s.RetryCount <= 0 {
		s.RetryCount = cfg.RetryCount
	}
	if s.RetryDelayMs <= 0 {
		s.RetryDelayMs = cfg.RetryDelayMs
	}
	return s
}

func (a *campaignsAPI) List(c *gin.Context) {
	campaigns, err := a.Store.ListCampaigns(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

func (a *campaignsAPI) Get(c *gin.Context) {
	campaign, err := a.Store.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

type updateCampaignRequest struct {
	Name     string                  `json:"name"`
	Settings models.CampaignSettings `json:"settings"`
}

func (a *campaignsAPI) Update(c *gin.Context) {
	id := c.Param("id")
	campaign, err := a.Store.GetCampaign(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	var req updateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.New(apperrors.KindInvalidInput, "api.campaigns.Update", err))
		return
	}
	if req.Name != "" {
		campaign.Name = req.Name
	}
	campaign.Settings = req.Settings
	if err := a.Store.UpdateCampaign(c.Request.Context(), campaign); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (a *campaignsAPI) Delete(c *gin.Context) {
	if err := a.Store.DeleteCampaign(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *campaignsAPI) Start(c *gin.Context) {
	id := c.Param("id")
	ok, err := a.Engine.StartCampaign(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		respondErr(c, apperrors.New(apperrors.KindConflict, "api.campaigns.Start", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *campaignsAPI) Pause(c *gin.Context) {
	ok, err := a.Engine.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		respondErr(c, apperrors.New(apperrors.KindConflict, "api.campaigns.Pause", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *campaignsAPI) Resume(c *gin.Context) {
	ok, err := a.Engine.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		respondErr(c, apperrors.New(apperrors.KindConflict, "api.campaigns.Resume", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *campaignsAPI) Stop(c *gin.Context) {
	ok, err := a.Engine.StopCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		respondErr(c, apperrors.New(apperrors.KindConflict, "api.campaigns.Stop", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type addContactsRequest struct {
	Contacts []struct {
		Phone    string `json:"phone" binding:"required"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Priority int    `json:"priority"`
	} `json:"contacts" binding:"required"`
}

func (a *campaignsAPI) AddContacts(c *gin.Context) {
	campaignID := c.Param("id")
	var req addContactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.New(apperrors.KindInvalidInput, "api.campaigns.AddContacts", err))
		return
	}

	contacts := make([]*models.Contact, 0, len(req.Contacts))
	for _, ct := range req.Contacts {
		contacts = append(contacts, &models.Contact{
			ID:       ids.New(),
			Phone:    ct.Phone,
			Name:     ct.Name,
			Email:    ct.Email,
			Priority: ct.Priority,
			Status:   models.ContactPending,
		})
	}
	if err := a.Store.AddContactsToCampaign(c.Request.Context(), campaignID, contacts); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": len(contacts)})
}

// StartFromCSV is intentionally unimplemented: the multipart upload path is
// an explicit Non-goal (spec §6.1). Operators add contacts via AddContacts.
func (a *campaignsAPI) StartFromCSV(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{
		"success": false,
		"error":   gin.H{"code": "not_implemented", "message": "CSV upload is not supported; use POST /api/campaigns/:id/contacts"},
	})
}
