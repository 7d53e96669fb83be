package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"github.com/hzi-braunschweig/pia-system/pkg/requestcontext"
)

// CaptureClient records the raw User-Agent and remote address on the request
// context so sessions can carry a human-readable device description.
func CaptureClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithUserAgent(r.Context(), r.UserAgent())
		ctx = requestcontext.WithDevice(ctx, DeviceName(r.UserAgent()))
		host := r.RemoteAddr
		if i := strings.LastIndexByte(host, ':'); i > 0 {
			host = host[:i]
		}
		ctx = requestcontext.WithClientIP(ctx, host)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceName turns a raw User-Agent string into a short display name such as
// "Chrome on Mac OS X". Unknown agents degrade gracefully.
func DeviceName(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}
	ua := useragent.New(rawUA)
	name, _ := ua.Browser()
	os := ua.OS()
	if ua.Mobile() && ua.Platform() != "" {
		os = ua.Platform()
	}
	switch {
	case name == "" && os == "":
		return "Unknown Device"
	case name == "":
		name = "Unknown Browser"
	case os == "":
		os = "Unknown OS"
	}
	return name + " on " + os
}
