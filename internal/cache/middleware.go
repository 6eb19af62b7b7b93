package cache

import (
	"net/http"
	"net/http/httptest"
	"time"
)

// Middleware serves successful responses of handler from storage for duration.
//
//nolint:errcheck
func Middleware(storage Storage, duration time.Duration, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if res, ok := storage.Get(r.RequestURI); ok {
			write(w, res)
			return
		}
		c := httptest.NewRecorder()
		handler(c, r)

		res := Response{
			Status: c.Code,
			Header: c.Result().Header,
			Body:   c.Body.Bytes(),
		}
		if res.Status == http.StatusOK {
			storage.Set(r.RequestURI, res, duration)
		}
		write(w, res)
	})
}

//nolint:errcheck
func write(w http.ResponseWriter, res Response) {
	for k, v := range res.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(res.Status)
	w.Write(res.Body)
}
