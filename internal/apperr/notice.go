package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Notice kinds rendered inline by user interfaces.
const (
	NoticeNotConfigured = "not_configured"
	NoticeRequestFailed = "request_failed"
	NoticeNetwork       = "network"
)

// Notice is the user-facing rendering of a failed operation.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

// Describe turns err into a Notice. Network/relay problems are detected
// heuristically from the raw failure, the remote side never reports them.
func Describe(err error) Notice {
	if err == nil {
		return Notice{}
	}
	if errors.Is(err, ErrNotConfigured) {
		return Notice{Kind: NoticeNotConfigured, Message: "Notion token is not configured. Open settings to add it."}
	}
	if looksLikeRelayProblem(err) {
		return Notice{Kind: NoticeNetwork, Message: "Connection failed. Check your internet connection or relay configuration."}
	}

	var rr *RemoteRejectedError
	if errors.As(err, &rr) {
		switch rr.Status {
		case http.StatusUnauthorized:
			return Notice{Kind: NoticeRequestFailed, Message: "Invalid token. Check your credentials."}
		case http.StatusForbidden:
			return Notice{Kind: NoticeRequestFailed, Message: "Access denied. Check that the integration was added to the page."}
		}
		return Notice{Kind: NoticeRequestFailed, Message: rr.Error()}
	}
	if errors.Is(err, ErrTimeout) {
		return Notice{Kind: NoticeRequestFailed, Message: "The request took too long. Try again."}
	}
	return Notice{Kind: NoticeRequestFailed, Message: "Request failed: " + err.Error()}
}

func looksLikeRelayProblem(err error) bool {
	if errors.Is(err, ErrNetworkUnreachable) {
		return true
	}
	var rr *RemoteRejectedError
	if errors.As(err, &rr) {
		if rr.Status == 0 {
			return true
		}
		if rr.Status == http.StatusBadRequest && strings.Contains(rr.Message, "CORS") {
			return true
		}
	}
	return false
}
