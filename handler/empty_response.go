package handler

import "net/http"

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty creates a 204 No Content response.
func Empty() Response {
	return emptyResponse{status: http.StatusNoContent}
}

// EmptyWithStatus creates a bodyless response with a custom status code.
func EmptyWithStatus(status int) Response {
	return emptyResponse{status: status}
}

type redirectResponse struct {
	url    string
	status int
}

func (rr redirectResponse) Render(w http.ResponseWriter, r *http.Request) error {
	http.Redirect(w, r, rr.url, rr.status)
	return nil
}

// Redirect creates a 302 Found redirect.
func Redirect(url string) Response {
	return redirectResponse{url: url, status: http.StatusFound}
}

type errorResponse struct {
	err error
}

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error {
	return e.err
}

// Error hands err to the ErrorHandler configured on Wrap, so domain errors
// go through the same mapping as binding errors.
func Error(err error) Response {
	return errorResponse{err: err}
}
