package http1

import "strconv"

// AppendRequestHead writes the request-line and fields of h.
func AppendRequestHead(dst []byte, h *Head) []byte {
	dst = append(dst, h.Method...)
	dst = append(dst, ' ')
	dst = append(dst, SanitizeHeaderValue(h.Target)...)
	dst = append(dst, ' ')
	dst = append(dst, versionOrDefault(h.Version).String()...)
	dst = append(dst, '\r', '\n')
	dst = h.Header.AppendTo(dst)
	return append(dst, '\r', '\n')
}

// AppendResponseHead writes the status-line and fields of h. An empty Reason
// is replaced by the standard phrase for the status code.
func AppendResponseHead(dst []byte, h *Head) []byte {
	reason := h.Reason
	if reason == "" {
		reason = StatusText(h.Status)
	}
	dst = append(dst, versionOrDefault(h.Version).String()...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(h.Status), 10)
	dst = append(dst, ' ')
	dst = append(dst, SanitizeHeaderValue(reason)...)
	dst = append(dst, '\r', '\n')
	dst = h.Header.AppendTo(dst)
	return append(dst, '\r', '\n')
}

func versionOrDefault(v Version) Version {
	if v == VersionUnknown {
		return Version11
	}
	return v
}

func StatusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 206:
		return "Partial Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 411:
		return "Length Required"
	case 413:
		return "Content Too Large"
	case 417:
		return "Expectation Failed"
	case 426:
		return "Upgrade Required"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 505:
		return "HTTP Version Not Supported"
	default:
		return ""
	}
}
