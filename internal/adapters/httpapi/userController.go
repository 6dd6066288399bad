package httpapi

import (
	"net/http"

	userPort "credpost/internal/ports/user"

	"github.com/gin-gonic/gin"
)

type UserController struct{ uc SessionUseCase }

func NewUserController(uc SessionUseCase) *UserController { return &UserController{uc: uc} }

// GetMe returns the connected account's contract metrics. The values are
// absent (404) when the last read failed.
func (ctl *UserController) GetMe(c *gin.Context) {
	if ctl.uc.Session() == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "wallet not connected", "code": "not_connected"})
		return
	}
	if c.Query("refresh") != "" {
		ctl.uc.RefreshUser(c.Request.Context())
	}

	dto := userPort.NewUserDTO(ctl.uc.Snapshot().User)
	if dto == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user info unavailable", "code": "not_found"})
		return
	}
	c.JSON(http.StatusOK, dto)
}
