package httpapi

import (
	"net/http"

	"credpost/internal/adapters/httpapi/middleware"
	"credpost/internal/core/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionController struct {
	uc     SessionUseCase
	tokens *middleware.SessionTokens
	logger *zap.Logger
}

func NewSessionController(uc SessionUseCase, tokens *middleware.SessionTokens, logger *zap.Logger) *SessionController {
	return &SessionController{uc: uc, tokens: tokens, logger: logger}
}

func (ctl *SessionController) Connect(c *gin.Context) {
	sess, err := ctl.uc.Connect(c.Request.Context())
	if err != nil {
		fail(c, "Failed to connect wallet!", err)
		return
	}

	token, err := ctl.tokens.Issue(sess)
	if err != nil {
		ctl.logger.Error("❌ Could not issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue session token", "code": "internal"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, token, int(ctl.tokens.TTL().Seconds()), "/", "", false, true)

	respond(c, http.StatusOK, "", "", gin.H{"session": sessionBody(sess, ctl.uc.State()), "token": token})
}

func (ctl *SessionController) Disconnect(c *gin.Context) {
	ctl.uc.Disconnect()
	c.SetCookie(middleware.CookieName, "", -1, "/", "", false, true)
	respond(c, http.StatusOK, "Wallet disconnected.", "info", gin.H{"state": ctl.uc.State()})
}

func (ctl *SessionController) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionBody(ctl.uc.Session(), ctl.uc.State()))
}

func (ctl *SessionController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": ctl.uc.State()})
}

func sessionBody(s *session.Session, state session.State) gin.H {
	body := gin.H{"state": state}
	if s != nil {
		body["sessionId"] = s.ID.String()
		body["account"] = s.Account.Hex()
		body["chainId"] = s.ChainID.String()
		body["connectedAt"] = s.ConnectedAt
	}
	return body
}
