package httpx

import "io"

// Response is the client view of a response. Body streams the response
// body; Trailer is filled once Body returns io.EOF.
type Response struct {
	Status        string
	StatusCode    int
	Proto         string
	Header        Header
	Trailer       Header
	Body          io.ReadCloser
	ContentLength int64
	Request       *Request
}
