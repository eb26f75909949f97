package utils

import (
	"net/http"

	"coffeefarm/globals"
)

func GetUserIDFromRequest(r *http.Request) string {
	ctx := r.Context()
	requestingUserID, ok := ctx.Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}

func GetSessionIDFromRequest(r *http.Request) string {
	sessionID, _ := r.Context().Value(globals.SessionIDKey).(string)
	return sessionID
}
