package middleware

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

// Sessions returns middleware that loads the request session before next
// runs and commits it exactly once, just before the response header is
// written. Handlers reach the session through [session.FromContext].
//
// Commit happens at the first of WriteHeader, Write, Flush, ReadFrom or
// Hijack, or when next returns without writing.
func Sessions(engine *goSession.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			sess := engine.Begin(r)
			r = r.WithContext(session.WithSession(r.Context(), sess))

			sw := &sessionWriter{
				ResponseWriter: w,
				engine:         engine,
				sess:           sess,
				req:            r,
			}
			next.ServeHTTP(sw, r)
			sw.commit()
		})
	}
}

// sessionWriter defers the session commit to the moment headers are about
// to leave. It keeps the optional interfaces of the wrapped writer.
type sessionWriter struct {
	http.ResponseWriter
	engine *goSession.Engine
	sess   *session.Session
	req    *http.Request
	once   sync.Once
}

func (w *sessionWriter) commit() {
	w.once.Do(func() {
		d := w.engine.Commit(w.req.Context(), w.sess, w.req)
		if d.Cookie != nil {
			http.SetCookie(w.ResponseWriter, d.Cookie)
		}
	})
}

func (w *sessionWriter) WriteHeader(code int) {
	// informational responses go out ahead of the final headers
	if code >= http.StatusOK {
		w.commit()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(p []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(p)
}

func (w *sessionWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) ReadFrom(r io.Reader) (int64, error) {
	w.commit()
	if rf, ok := w.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(r)
	}
	return io.Copy(w.ResponseWriter, r)
}

func (w *sessionWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	w.commit()
	return hj.Hijack()
}

func (w *sessionWriter) Push(target string, opts *http.PushOptions) error {
	if p, ok := w.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func (w *sessionWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RequestMetadata attaches a request ID and the client IP to the request
// context so session logs and audit events can be correlated. An incoming
// X-Request-ID header is reused; otherwise a new ID is generated and echoed.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = goSession.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := goSession.WithRequestID(r.Context(), id)
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ctx = goSession.WithClientIP(ctx, host)
		} else if r.RemoteAddr != "" {
			ctx = goSession.WithClientIP(ctx, r.RemoteAddr)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
