package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rahulrsolguruz/chat-app-api/internal/auth"
	"github.com/rahulrsolguruz/chat-app-api/internal/service"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc    *service.UserService
	contactSvc *service.ContactService
	groupSvc   *service.GroupService
	msgSvc     *service.MessageService
	adminSvc   *service.AdminService
	mediaSvc   *service.MediaService
}

func NewHandler(userSvc *service.UserService, contactSvc *service.ContactService, groupSvc *service.GroupService, msgSvc *service.MessageService, adminSvc *service.AdminService, mediaSvc *service.MediaService) *Handler {
	return &Handler{userSvc: userSvc, contactSvc: contactSvc, groupSvc: groupSvc, msgSvc: msgSvc, adminSvc: adminSvc, mediaSvc: mediaSvc}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	result, err := h.userSvc.Register(req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email taken"})
		default:
			log.Error().Err(err).Str("username", req.Username).Msg("register")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": result.ID, "username": result.Username, "email": result.Email})
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          gin.H{"id": result.User.ID, "username": result.User.Username, "role": result.User.Role},
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// Profile 返回当前用户的资料。
func (h *Handler) Profile(c *gin.Context) {
	profile, err := h.userSvc.Profile(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Str("user_id", auth.GetUserID(c)).Msg("profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

// UpdateProfile 更新当前用户的简介与头像。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req struct {
		Bio       string `json:"bio"`
		AvatarURL string `json:"avatar_url" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Bio) > 512 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bio too long"})
		return
	}
	profile, err := h.userSvc.UpdateProfile(auth.GetUserID(c), req.Bio, req.AvatarURL)
	if err != nil {
		log.Error().Err(err).Str("user_id", auth.GetUserID(c)).Msg("update profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

// AddContact 处理添加联系人请求。
func (h *Handler) AddContact(c *gin.Context) {
	var req struct {
		ContactID string `json:"contact_id" binding:"required,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	contact, err := h.contactSvc.Add(auth.GetUserID(c), req.ContactID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfContact):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot add yourself"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrContactExists):
			c.JSON(http.StatusConflict, gin.H{"error": "contact already exists"})
		default:
			log.Error().Err(err).Str("user_id", auth.GetUserID(c)).Msg("add contact")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add contact"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

// ListContacts 返回联系人列表。
func (h *Handler) ListContacts(c *gin.Context) {
	contacts, err := h.contactSvc.List(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Str("user_id", auth.GetUserID(c)).Msg("list contacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list contacts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

// Presence 查询指定用户的在线状态。
func (h *Handler) Presence(c *gin.Context) {
	p, err := h.contactSvc.Presence(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Str("target_id", c.Param("id")).Msg("presence")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateGroup 处理建群请求，创建者自动成为管理员。
func (h *Handler) CreateGroup(c *gin.Context) {
	var req struct {
		Name       string `json:"name"`
		PictureURL string `json:"picture_url" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group name"})
		return
	}
	group, err := h.groupSvc.Create(req.Name, req.PictureURL, auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Str("user_id", auth.GetUserID(c)).Str("name", req.Name).Msg("create group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// ListGroups 返回当前用户所在的群组列表。
func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.groupSvc.ListForUser(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Str("user_id", auth.GetUserID(c)).Msg("list groups")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GroupMembers 返回群成员列表。
func (h *Handler) GroupMembers(c *gin.Context) {
	members, err := h.groupSvc.Members(c.Param("id"), auth.GetUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		case errors.Is(err, service.ErrNotGroupMember):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
		default:
			log.Error().Err(err).Str("group_id", c.Param("id")).Msg("group members")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list members"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// DirectMessages 返回与某个用户的一对一消息历史。
func (h *Handler) DirectMessages(c *gin.Context) {
	limit, before, ok := pagination(c)
	if !ok {
		return
	}
	msgs, err := h.msgSvc.DirectHistory(auth.GetUserID(c), c.Param("peer_id"), limit, before)
	if err != nil {
		log.Error().Err(err).Str("peer_id", c.Param("peer_id")).Msg("direct messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GroupMessages 返回群消息历史。
func (h *Handler) GroupMessages(c *gin.Context) {
	limit, before, ok := pagination(c)
	if !ok {
		return
	}
	msgs, err := h.msgSvc.GroupHistory(c.Param("id"), auth.GetUserID(c), limit, before)
	if err != nil {
		if errors.Is(err, service.ErrNotGroupMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
			return
		}
		log.Error().Err(err).Str("group_id", c.Param("id")).Msg("group messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// UploadMedia 处理媒体上传，按字节嗅探内容类型。
func (h *Handler) UploadMedia(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
		return
	}
	defer f.Close()

	media, err := h.mediaSvc.Save(auth.GetUserID(c), f, fh.Size)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMediaTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		case errors.Is(err, service.ErrUnsupportedMedia):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported media type"})
		default:
			log.Error().Err(err).Str("user_id", auth.GetUserID(c)).Msg("upload media")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media})
}

// AdminActivity 返回审计日志报表，仅限管理员。
func (h *Handler) AdminActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	recs, total, err := h.adminSvc.ActivityReport(limit, offset, c.Query("user_id"), c.Query("type"))
	if err != nil {
		log.Error().Err(err).Msg("admin activity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": recs, "total": total})
}

// AdminOverview 返回全局统计概览，仅限管理员。
func (h *Handler) AdminOverview(c *gin.Context) {
	overview, err := h.adminSvc.Overview()
	if err != nil {
		log.Error().Err(err).Msg("admin overview")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load overview"})
		return
	}
	c.JSON(http.StatusOK, overview)
}

// pagination 解析 limit 与 before 查询参数；before 为 RFC3339 时间戳。
func pagination(c *gin.Context) (int, time.Time, bool) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before timestamp"})
			return 0, time.Time{}, false
		}
		before = t
	}
	return limit, before, true
}
