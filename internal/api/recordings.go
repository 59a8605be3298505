package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type recordingsAPI struct {
	Deps
}

func (a *recordingsAPI) Get(c *gin.Context) {
	r, err := a.Store.GetRecording(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Stream redirects to the provider-hosted recording URL. A caching/proxy
// layer in front of the provider's own storage is explicitly out of scope
// (spec §6.1), so this just hands the client the upstream URL.
func (a *recordingsAPI) Stream(c *gin.Context) {
	r, err := a.Store.GetRecording(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if r.URL == "" {
		respondErr(c, notFoundf("recording %s has no media url yet", r.ID))
		return
	}
	c.Redirect(http.StatusFound, r.URL)
}
