package user

import (
	"context"
	"net/http"

	"PMobility/middleware"
	"PMobility/middleware/security"
	usermodel "PMobility/module/user/model"
	"PMobility/tools/errs"

	"github.com/gin-gonic/gin"
)

// Profiles 用户资料用例（service.Profile 满足）
type Profiles interface {
	UpdateLocation(ctx context.Context, userID string, loc usermodel.Location) (int, error)
	RegisterDevice(ctx context.Context, userID, token, device string) error
	ListFriends(ctx context.Context, userID string) ([]usermodel.Profile, error)
}

type Handler struct {
	svc Profiles
}

func NewHandler(svc Profiles) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r *middleware.Routes) {
	auth := middleware.RouteOpt{IsAuth: true}
	r.PUT("/client/location", h.UpdateLocation, auth)
	r.POST("/client/fcm-token", h.RegisterDevice, auth)
	r.GET("/client/friends", h.ListFriends, auth)
}

type locationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type deviceReq struct {
	FcmToken string `json:"fcmToken"`
	Device   string `json:"device"`
}

func (h *Handler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		middleware.Fail(c, errs.ErrInvalidInput.WrapMsg("lat and lng are required"))
		return
	}
	loc := usermodel.Location{Lat: *req.Lat, Lng: *req.Lng}
	if _, err := h.svc.UpdateLocation(c.Request.Context(), security.UserID(c), loc); err != nil {
		middleware.Fail(c, err)
		return
	}
	middleware.OK(c, http.StatusOK, gin.H{"location": loc})
}

func (h *Handler) RegisterDevice(c *gin.Context) {
	var req deviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, errs.ErrInvalidInput.WrapMsg("invalid body"))
		return
	}
	if err := h.svc.RegisterDevice(c.Request.Context(), security.UserID(c), req.FcmToken, req.Device); err != nil {
		middleware.Fail(c, err)
		return
	}
	middleware.OK(c, http.StatusCreated, gin.H{"success": true})
}

func (h *Handler) ListFriends(c *gin.Context) {
	friends, err := h.svc.ListFriends(c.Request.Context(), security.UserID(c))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	if friends == nil {
		friends = []usermodel.Profile{}
	}
	middleware.OK(c, http.StatusOK, friends)
}
