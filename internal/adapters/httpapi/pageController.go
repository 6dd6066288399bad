package httpapi

import (
	"net/http"

	"credpost/internal/adapters/httpapi/view"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PageController struct {
	uc     SessionUseCase
	logger *zap.Logger
}

func NewPageController(uc SessionUseCase, logger *zap.Logger) *PageController {
	return &PageController{uc: uc, logger: logger}
}

func (ctl *PageController) Index(c *gin.Context) {
	level := c.Query("level")
	if level != "error" {
		level = "info"
	}
	html, err := view.RenderPage(view.PageData{
		Snapshot: ctl.uc.Snapshot(),
		Notice:   c.Query("notice"),
		Level:    level,
	})
	if err != nil {
		ctl.logger.Error("❌ Could not render page", zap.Error(err))
		c.String(http.StatusInternalServerError, "could not render page")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
