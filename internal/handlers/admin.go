package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hipper-gif/meal-delivery/internal/middleware"
	"github.com/hipper-gif/meal-delivery/internal/repository"
)

const timeLayout = time.RFC3339

// CurrentOrganization returns the organization of the logged-in company admin.
func (h HandlerSet) CurrentOrganization(c *gin.Context) {
	claims := middleware.CurrentSession(c).Claims

	org, err := h.organizations.GetByID(c.Request.Context(), claims.OrganizationID)
	if err != nil {
		if errors.Is(err, repository.ErrOrganizationNotFound) {
			NotFound(c)
			return
		}
		h.log.Error().Err(err).Str("organization_id", claims.OrganizationID).Msg("load organization failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "A system error occurred. Please try again later."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"company": gin.H{
			"id":                     org.ID,
			"code":                   org.Code,
			"name":                   org.Name,
			"name_kana":              org.NameKana,
			"postal_code":            org.PostalCode,
			"full_address":           org.FullAddress,
			"delivery_location_name": org.DeliveryLocationName,
			"phone":                  org.Phone,
			"phone_extension":        org.PhoneExtension,
			"delivery_notes":         org.DeliveryNotes,
			"contact_person":         org.ContactPerson,
			"status":                 org.Status,
			"created_at":             org.CreatedAt.UTC().Format(timeLayout),
		},
	})
}
