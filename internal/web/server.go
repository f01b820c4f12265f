// Package web serves the browser forms of the hub: create, browse and
// contribute, plus a live event stream.
package web

import (
	"context"
	"embed"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/transport"
)

//go:embed static/index.html
var static embed.FS

// HubClient defines the hub operations the forms use. *client.Hub
// implements it.
type HubClient interface {
	CreateProject(ctx context.Context, name string, amountNeeded *big.Int, deadline time.Time, opts ...client.TxOpts) (*chain.Receipt, error)
	Contribute(ctx context.Context, name string, opts ...client.TxOpts) (*chain.Receipt, error)
	ActiveProjects(ctx context.Context) (string, error)
	Project(ctx context.Context, name string) (*hub.ProjectView, error)
	Projects(ctx context.Context) ([]hub.ProjectView, error)
	Contributors(ctx context.Context, name string) ([]hub.Contribution, error)
}

// EventSource streams ledger logs. *ledger.Chain implements it.
type EventSource interface {
	Subscribe(buffer int) (<-chan chain.Log, func())
}

type Config struct {
	Hub    HubClient
	Events EventSource
	// Account sends every call when Auth is nil.
	Account common.Address
	// Auth, when set, guards /api and sends calls as the key's account.
	Auth         transport.AccountResolver
	AllowOrigins []string
	Logger       *slog.Logger
}

type server struct {
	hub     HubClient
	events  EventSource
	account common.Address
	logger  *slog.Logger
}

// NewRouter builds the gin engine.
func NewRouter(cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 0 || (len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	corsCfg.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsCfg))

	s := &server{
		hub:     cfg.Hub,
		events:  cfg.Events,
		account: cfg.Account,
		logger:  cfg.Logger,
	}

	r.GET("/", s.index)
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	if cfg.Auth != nil {
		api.Use(requireAccount(cfg.Auth))
	}
	{
		api.GET("/projects", s.listProjects)
		api.POST("/projects", s.createProject)
		api.GET("/projects/:name", s.getProject)
		api.POST("/projects/:name/contribute", s.contribute)
		api.GET("/events/ws", s.streamEvents)
	}

	return r
}

func (s *server) index(c *gin.Context) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
