package bservetest

import (
	"net/http"
	"net/http/httptest"

	"github.com/advdv/bssr"
)

// CallHandler invokes a [bssr.HandlerFunc] with a buffered response writer and returns the recorded
// response. An error returned by the handler is rendered with [bssr.DefaultErrorHandler], like the
// bridge does.
func CallHandler(handler bssr.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	w := bssr.NewResponseWriter(rec, -1)

	if err := handler(req.Context(), w, req); err != nil {
		bssr.DefaultErrorHandler(w, req, err)
	}

	if err := w.FlushBuffer(); err != nil {
		panic("bservetest: FlushBuffer failed: " + err.Error())
	}

	return rec
}
