package notifications

import (
	"strings"

	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

// MapSeverity prefers an explicit severity in Type and falls back to Priority.
func MapSeverity(n models.Notification) models.Severity {
	switch s := models.Severity(strings.ToLower(n.Type)); s {
	case models.SeverityInfo, models.SeverityWarning, models.SeverityError, models.SeveritySuccess:
		return s
	}
	switch strings.ToLower(n.Priority) {
	case "urgent", "high":
		return models.SeverityError
	case "medium":
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
