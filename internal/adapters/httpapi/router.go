package httpapi

import (
	"context"
	"math/big"
	"time"

	"credpost/internal/adapters/httpapi/middleware"
	"credpost/internal/core/session"
	eventsPort "credpost/internal/ports/events"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionUseCase is the inbound port the handlers drive.
type SessionUseCase interface {
	Connect(ctx context.Context) (*session.Session, error)
	Disconnect()
	CreatePost(ctx context.Context, postID *big.Int) error
	Vote(ctx context.Context, postID *big.Int, isUpvote bool) error
	RefreshPosts(ctx context.Context)
	RefreshUser(ctx context.Context)
	Snapshot() session.Snapshot
	Session() *session.Session
	State() session.State
}

// Routing only: use cases and infrastructure are injected.
func SetupRoutes(
	sessionUC SessionUseCase,
	bus eventsPort.Bus,
	tokens *middleware.SessionTokens,
	allowOrigins []string,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	sc := NewSessionController(sessionUC, tokens, logger)
	pc := NewPostController(sessionUC, logger)
	uc := NewUserController(sessionUC)
	ec := NewEventsController(bus, 15*time.Second, logger)
	vc := NewPageController(sessionUC, logger)

	requireSession := middleware.RequireSession(tokens, sessionUC)
	// ?refresh=1 forces contract reads
	requireSessionToRefresh := func(c *gin.Context) {
		if c.Query("refresh") == "" {
			c.Next()
			return
		}
		requireSession(c)
	}

	r.GET("/", vc.Index)
	r.GET("/health", sc.Health)
	r.GET("/session", sc.GetSession)
	r.GET("/events", ec.Stream)

	r.POST("/connect", sc.Connect)
	r.POST("/disconnect", requireSession, sc.Disconnect)

	r.GET("/posts", requireSessionToRefresh, pc.ListPosts)
	r.POST("/posts", requireSession, pc.CreatePost)
	r.POST("/posts/:id/vote", requireSession, pc.Vote)

	r.GET("/me", requireSessionToRefresh, uc.GetMe)
	return r
}
