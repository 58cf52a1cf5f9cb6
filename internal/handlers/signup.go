package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hipper-gif/meal-delivery/internal/middleware"
	"github.com/hipper-gif/meal-delivery/internal/service"
)

type signupRequest struct {
	PostalCode           string `form:"postal_code"`
	Prefecture           string `form:"prefecture"`
	City                 string `form:"city"`
	AddressLine1         string `form:"address_line1"`
	AddressLine2         string `form:"address_line2"`
	CompanyName          string `form:"company_name"`
	CompanyNameKana      string `form:"company_name_kana"`
	DeliveryLocationName string `form:"delivery_location_name"`
	CompanyPhone         string `form:"company_phone"`
	PhoneExtension       string `form:"phone_extension"`
	DeliveryNotes        string `form:"delivery_notes"`
	UserName             string `form:"user_name"`
	UserNameKana         string `form:"user_name_kana"`
	Email                string `form:"email"`
	EmailConfirm         string `form:"email_confirm"`
	Password             string `form:"password"`
	PasswordConfirm      string `form:"password_confirm"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request."})
		return
	}

	state := middleware.CurrentSession(c)
	result, err := h.signup.Signup(c.Request.Context(), service.SignupInput{
		PostalCode:           req.PostalCode,
		Prefecture:           req.Prefecture,
		City:                 req.City,
		AddressLine1:         req.AddressLine1,
		AddressLine2:         req.AddressLine2,
		CompanyName:          req.CompanyName,
		CompanyNameKana:      req.CompanyNameKana,
		DeliveryLocationName: req.DeliveryLocationName,
		CompanyPhone:         req.CompanyPhone,
		PhoneExtension:       req.PhoneExtension,
		DeliveryNotes:        req.DeliveryNotes,
		UserName:             req.UserName,
		UserNameKana:         req.UserNameKana,
		Email:                req.Email,
		EmailConfirm:         req.EmailConfirm,
		Password:             req.Password,
		PasswordConfirm:      req.PasswordConfirm,
		ClientIP:             c.ClientIP(),
		State:                state,
	})
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	if state.Authenticated() {
		h.setSessionCookie(c, state.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Registration complete.",
		"data": gin.H{
			"user_id":      result.AccountID,
			"company_id":   result.OrganizationID,
			"user_code":    result.UserCode,
			"company_code": result.OrganizationCode,
		},
		"redirect_url": h.cfg.Redirects.AfterSignup,
	})
}
