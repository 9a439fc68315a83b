package auth

import "items-api/internal/models"

// CanAccess reports whether caller may act on resources scoped to
// targetUserID. Admins may act on any user's resources; everyone else only
// on their own.
func CanAccess(caller *models.User, targetUserID int64) bool {
	if caller == nil {
		return false
	}
	return caller.IsAdmin || caller.ID == targetUserID
}
