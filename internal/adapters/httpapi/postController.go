package httpapi

import (
	"net/http"
	"strings"

	"credpost/internal/adapters/httpapi/view"
	"credpost/internal/core/post"
	sessionapp "credpost/internal/core/session/service"
	postPort "credpost/internal/ports/post"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PostController struct {
	uc     SessionUseCase
	logger *zap.Logger
}

func NewPostController(uc SessionUseCase, logger *zap.Logger) *PostController {
	return &PostController{uc: uc, logger: logger}
}

// ListPosts serves the cached list; ?refresh=1 re-reads the contract first.
// Browsers get the rendered fragment, API clients the JSON list.
func (ctl *PostController) ListPosts(c *gin.Context) {
	if c.Query("refresh") != "" {
		ctl.uc.RefreshPosts(c.Request.Context())
	}
	posts := ctl.uc.Snapshot().Posts

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		html, err := view.RenderPosts(posts)
		if err != nil {
			ctl.logger.Error("❌ Could not render posts", zap.Error(err))
			c.String(http.StatusInternalServerError, "could not render posts")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": postPort.NewPostDTOs(posts)})
}

func (ctl *PostController) CreatePost(c *gin.Context) {
	var req struct {
		PostID string `form:"postId" json:"postId"`
	}
	if err := c.ShouldBind(&req); err != nil {
		respond(c, http.StatusBadRequest, "Please enter a Post ID!", "error", gin.H{"error": "invalid input", "code": "invalid_input"})
		return
	}
	raw := strings.TrimSpace(req.PostID)
	if raw == "" {
		respond(c, http.StatusBadRequest, "Please enter a Post ID!", "error", gin.H{"error": "Please enter a Post ID!", "code": "missing_post_id"})
		return
	}
	id, err := post.ParseID(raw)
	if err != nil {
		fail(c, "Failed to create post!", sessionapp.ErrInvalidPostID)
		return
	}

	if err := ctl.uc.CreatePost(c.Request.Context(), id); err != nil {
		fail(c, "Failed to create post!", err)
		return
	}
	respond(c, http.StatusCreated, "Post created successfully!", "info", gin.H{"message": "Post created successfully!", "postId": id.String()})
}

func (ctl *PostController) Vote(c *gin.Context) {
	id, err := post.ParseID(c.Param("id"))
	if err != nil {
		fail(c, "Failed to vote!", sessionapp.ErrInvalidPostID)
		return
	}

	var req struct {
		Direction string `form:"direction" json:"direction"`
	}
	if err := c.ShouldBind(&req); err != nil {
		respond(c, http.StatusBadRequest, "Failed to vote!", "error", gin.H{"error": "invalid input", "code": "invalid_input"})
		return
	}
	var isUpvote bool
	switch strings.ToLower(req.Direction) {
	case "up":
		isUpvote = true
	case "down":
		isUpvote = false
	default:
		respond(c, http.StatusBadRequest, "Failed to vote!", "error", gin.H{"error": "direction must be up or down", "code": "invalid_direction"})
		return
	}

	if err := ctl.uc.Vote(c.Request.Context(), id, isUpvote); err != nil {
		fail(c, "Failed to vote!", err)
		return
	}
	respond(c, http.StatusOK, "", "", gin.H{"postId": id.String(), "isUpvote": isUpvote})
}
