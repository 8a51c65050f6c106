package service

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/marketlink/sellchat/global"
	"github.com/marketlink/sellchat/logger"
	"github.com/marketlink/sellchat/middleware/security"
	"github.com/marketlink/sellchat/module/chat/model"
	"github.com/marketlink/sellchat/module/chat/store"
	"github.com/marketlink/sellchat/service/storage"
	"github.com/marketlink/sellchat/tools/errs"
)

// API is the conversation query service: read-side boundary over the
// relational store, the presence store and the unseen counters. It holds
// no concurrency state of its own.
type API struct {
	store    *store.Store
	pageSize int
}

func NewAPI(st *store.Store, pageSize int) *API {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &API{store: st, pageSize: pageSize}
}

// Register mounts the authenticated routes.
func (a *API) Register(r *gin.Engine, jwtSecret []byte) {
	g := r.Group("/chat", security.Middleware(jwtSecret))
	g.GET("/conversations", a.handleListConversations)
	g.GET("/conversations/:id/messages", a.handleListMessages)
	g.POST("/contact", a.handleContact)
}

type conversationView struct {
	Conversation  model.Conversation `json:"conversation"`
	CounterpartID string             `json:"counterpartId"`
	Online        bool               `json:"online"`
	UnseenCount   int64              `json:"unseenCount"`
	LastMessage   *model.Message     `json:"lastMessage,omitempty"`
}

func (a *API) handleListConversations(c *gin.Context) {
	role, id, ok := security.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
		return
	}
	sums, err := a.store.ListConversations(c.Request.Context(), role, id)
	if err != nil {
		logger.Errorf("[API] list conversations role=%s id=%s: %v", role, id, err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}

	counterpartRole := global.OppositeRole(role)
	views := make([]conversationView, 0, len(sums))
	for _, sum := range sums {
		online, err := storage.IsOnline(c.Request.Context(), counterpartRole, sum.CounterpartID)
		if err != nil {
			logger.Errorf("[API] presence lookup %s/%s: %v", counterpartRole, sum.CounterpartID, err)
		}
		unseen, err := storage.GetUnseen(c.Request.Context(), role, sum.Conversation.ID)
		if err != nil {
			logger.Errorf("[API] unseen lookup conv=%s: %v", sum.Conversation.ID, err)
		}
		views = append(views, conversationView{
			Conversation:  sum.Conversation,
			CounterpartID: sum.CounterpartID,
			Online:        online,
			UnseenCount:   unseen,
			LastMessage:   sum.LastMessage,
		})
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

func (a *API) handleListMessages(c *gin.Context) {
	role, id, ok := security.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
		return
	}
	convID := c.Param("id")

	member, err := a.store.IsParticipant(c.Request.Context(), convID, role, id)
	if err != nil {
		logger.Errorf("[API] participant check conv=%s: %v", convID, err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, errs.ErrNoPermission)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	msgs, err := a.store.ListMessages(c.Request.Context(), convID, page, a.pageSize)
	if err != nil {
		logger.Errorf("[API] list messages conv=%s: %v", convID, err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}

	// fetching history acknowledges the conversation as viewed
	if err := storage.ClearUnseen(c.Request.Context(), role, convID); err != nil {
		logger.Errorf("[API] clear unseen conv=%s: %v", convID, err)
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "page": page})
}

type contactRequest struct {
	SellerID string `json:"sellerId"`
	UserID   string `json:"userId"`
}

// handleContact creates (or reuses) the 1:1 conversation between the
// caller and the named counterpart.
func (a *API) handleContact(c *gin.Context) {
	role, id, ok := security.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
		return
	}
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}

	var userID, sellerID string
	switch role {
	case global.RoleUser:
		userID, sellerID = id, req.SellerID
	case global.RoleSeller:
		userID, sellerID = req.UserID, id
	}
	if userID == "" || sellerID == "" {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("missing counterpart id"))
		return
	}

	conv, err := a.store.EnsureConversation(c.Request.Context(), userID, sellerID)
	if err != nil {
		logger.Errorf("[API] ensure conversation user=%s seller=%s: %v", userID, sellerID, err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}
