package web

import (
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/transport"
)

type createProjectRequest struct {
	Name         string `json:"name" binding:"required"`
	AmountNeeded string `json:"amount_needed" binding:"required"`
	// Deadline is unix seconds.
	Deadline int64 `json:"deadline" binding:"required"`
}

type contributeRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type projectResponse struct {
	hub.ProjectView
	Contributors []hub.Contribution `json:"contributors"`
}

func (s *server) listProjects(c *gin.Context) {
	if c.Query("active") == "true" {
		active, err := s.hub.ActiveProjects(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"active": active, "names": client.SplitNames(active)})
		return
	}

	views, err := s.hub.Projects(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if views == nil {
		views = []hub.ProjectView{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": views})
}

func (s *server) getProject(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	view, err := s.hub.Project(ctx, name)
	if err != nil {
		s.fail(c, err)
		return
	}
	contributors, err := s.hub.Contributors(ctx, name)
	if err != nil {
		s.fail(c, err)
		return
	}
	if contributors == nil {
		contributors = []hub.Contribution{}
	}
	c.JSON(http.StatusOK, projectResponse{ProjectView: *view, Contributors: contributors})
}

func (s *server) createProject(c *gin.Context) {
	var input createProjectRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	goal, ok := parseWei(input.AmountNeeded)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_needed must be a decimal wei amount"})
		return
	}
	receipt, err := s.hub.CreateProject(c.Request.Context(), input.Name, goal, time.Unix(input.Deadline, 0), s.sender(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (s *server) contribute(c *gin.Context) {
	var input contributeRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := parseWei(input.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal wei amount"})
		return
	}
	opts := s.sender(c)
	opts.Value = amount

	receipt, err := s.hub.Contribute(c.Request.Context(), c.Param("name"), opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// sender is the authenticated account, or the gateway account when the
// router runs without auth. Request bodies never choose it.
func (s *server) sender(c *gin.Context) client.TxOpts {
	if account, ok := transport.AccountFromContext(c.Request.Context()); ok {
		return client.TxOpts{From: account}
	}
	return client.TxOpts{From: s.account}
}

func (s *server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if kind := hub.KindOf(err); kind != hub.KindUnknown {
		body["kind"] = kind.String()
	}
	var revert *client.RevertError
	if errors.As(err, &revert) {
		body["tx_id"] = revert.TxID
		body["reason"] = revert.Reason
	}
	if status == http.StatusInternalServerError && s.logger != nil {
		s.logger.ErrorContext(c.Request.Context(), "web request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	var timeout *client.TimeoutError
	switch {
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, hub.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, hub.ErrProjectExists):
		return http.StatusConflict
	case errors.Is(err, chain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	}
	switch hub.KindOf(err) {
	case hub.KindValidation:
		return http.StatusBadRequest
	case hub.KindStateConflict:
		return http.StatusConflict
	case hub.KindSettlement:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func parseWei(raw string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
