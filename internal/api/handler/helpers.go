package handler

import (
	"encoding/json"
	"net/http"

	"examforge/internal/api/middleware"
	"examforge/internal/common"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into dst and answers 400 on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// caller returns the authenticated user's id and role.
func caller(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return "", "", false
	}
	role, _ := middleware.GetUserRoleFromContext(r.Context())
	return userID, role, true
}
