package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hipper-gif/meal-delivery/internal/middleware"
	"github.com/hipper-gif/meal-delivery/internal/service"
	"github.com/hipper-gif/meal-delivery/internal/session"
)

type loginRequest struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

type userResponse struct {
	ID             string `json:"id"`
	UserCode       string `json:"user_code"`
	UserName       string `json:"user_name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	IsCompanyAdmin bool   `json:"is_company_admin"`
	CompanyName    string `json:"company_name"`
}

func newUserResponse(claims session.Claims) userResponse {
	return userResponse{
		ID:             claims.AccountID,
		UserCode:       claims.UserCode,
		UserName:       claims.UserName,
		Email:          claims.Email,
		Role:           string(claims.Role),
		IsCompanyAdmin: claims.IsCompanyAdmin,
		CompanyName:    claims.OrganizationName,
	}
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request."})
		return
	}
	_, rememberMe := c.GetPostForm("remember_me")

	state := middleware.CurrentSession(c)
	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: rememberMe,
		ClientIP:   c.ClientIP(),
		State:      state,
	})
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	h.sendLoginResponse(c, state, result)
}

// Remember logs the client in from the remember_token and remember_user
// cookies and hands back rotated cookies.
func (h HandlerSet) Remember(c *gin.Context) {
	token, _ := c.Cookie(rememberTokenCookie)
	accountCookie, _ := c.Cookie(rememberUserCookie)

	state := middleware.CurrentSession(c)
	result, err := h.auth.Reauthenticate(c.Request.Context(), service.ReauthInput{
		Token:         token,
		AccountCookie: accountCookie,
		ClientIP:      c.ClientIP(),
		State:         state,
	})
	if err != nil {
		if service.KindOf(err) != service.KindRateLimited {
			h.clearRememberCookies(c)
		}
		h.fail(c, err, nil)
		return
	}

	h.sendLoginResponse(c, state, result)
}

func (h HandlerSet) sendLoginResponse(c *gin.Context, state *session.State, result service.LoginResult) {
	h.setSessionCookie(c, state.ID)
	if result.RememberToken != "" {
		h.setRememberCookies(c, result.RememberToken, result.AccountCookie, result.RememberExpires)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Logged in.",
		"user":         newUserResponse(result.Claims),
		"redirect_url": h.cfg.Redirects.AfterLogin,
	})
}

// Logout always expires the client cookies, even when server-side cleanup
// reports an error.
func (h HandlerSet) Logout(c *gin.Context) {
	err := h.auth.Logout(c.Request.Context(), middleware.CurrentSession(c), c.ClientIP())

	h.clearRememberCookies(c)
	h.expireCookie(c, h.cfg.Session.CookieName)

	if err != nil {
		h.fail(c, err, gin.H{"redirect_url": h.cfg.Redirects.AfterLogout})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Logged out.",
		"redirect_url": h.cfg.Redirects.AfterLogout,
	})
}

type sessionResponse struct {
	User             userResponse `json:"user"`
	OrganizationID   string       `json:"company_id"`
	OrganizationCode string       `json:"company_code"`
	LoginAt          string       `json:"login_at"`
	LastActivityAt   string       `json:"last_activity_at"`
}

func (h HandlerSet) CurrentSession(c *gin.Context) {
	claims := middleware.CurrentSession(c).Claims
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": sessionResponse{
			User:             newUserResponse(*claims),
			OrganizationID:   claims.OrganizationID,
			OrganizationCode: claims.OrganizationCode,
			LoginAt:          claims.LoginAt.UTC().Format(timeLayout),
			LastActivityAt:   claims.LastActivityAt.UTC().Format(timeLayout),
		},
	})
}
