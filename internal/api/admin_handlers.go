package api

import (
	"log/slog"
	"net/http"

	"brillance/internal/model"

	"github.com/gin-gonic/gin"
)

type banUserRequest struct {
	IsBanned *bool `json:"isBanned"`
}

// handleBanUser 封禁或解封用户。admin 角色的账号不允许被封禁。
func (s *Server) handleBanUser(c *gin.Context) {
	var req banUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsBanned == nil {
		fail(c, http.StatusBadRequest, "参数错误")
		return
	}

	id := c.Param("id")
	user, err := s.users.FindByID(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	if user == nil {
		fail(c, http.StatusNotFound, "用户不存在")
		return
	}
	if user.Role == model.RoleAdmin {
		fail(c, http.StatusBadRequest, "不能封禁管理员账号")
		return
	}

	if err := s.users.SetBanned(c.Request.Context(), id, *req.IsBanned); err != nil {
		fail(c, http.StatusInternalServerError, "操作失败")
		return
	}

	s.logger.Info("user ban state changed",
		slog.String("user_id", id),
		slog.Bool("banned", *req.IsBanned))

	if *req.IsBanned {
		okMsg(c, "用户已封禁")
	} else {
		okMsg(c, "用户已解封")
	}
}

// handleDeleteUser 注销用户。admin 角色的账号不允许被注销。
func (s *Server) handleDeleteUser(c *gin.Context) {
	id := c.Param("id")
	user, err := s.users.FindByID(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	if user == nil {
		fail(c, http.StatusNotFound, "用户不存在")
		return
	}
	if user.Role == model.RoleAdmin {
		fail(c, http.StatusBadRequest, "不能注销管理员账号")
		return
	}

	if err := s.users.Delete(c.Request.Context(), id); err != nil {
		fail(c, http.StatusInternalServerError, "操作失败")
		return
	}

	s.logger.Info("user deleted", slog.String("user_id", id))
	okMsg(c, "用户已注销")
}
