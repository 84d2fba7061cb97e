package cookies

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Jar is the minimal cookie surface the services need. Treating the cookie
// store as an explicit repository keeps the issuance and handoff logic unit
// testable without an HTTP stack, and keeps ownership honest: cookies are
// shared with the edge and the browser, never exclusively ours.
type Jar interface {
	Get(name string) (string, bool)
	Set(cookie *http.Cookie)
	Delete(name string)
}

// EchoJar adapts an echo request/response pair to the Jar interface. Reads
// come from the request; writes and deletions go to the response.
type EchoJar struct {
	c     echo.Context
	codec Codec
}

func NewEchoJar(c echo.Context, codec Codec) *EchoJar {
	return &EchoJar{c: c, codec: codec}
}

func (j *EchoJar) Get(name string) (string, bool) {
	ck, err := j.c.Cookie(name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

func (j *EchoJar) Set(cookie *http.Cookie) {
	j.c.SetCookie(cookie)
}

func (j *EchoJar) Delete(name string) {
	j.c.SetCookie(j.codec.Expired(name))
}

// MemoryJar is an in-memory Jar for tests and for the headless agent, which
// has no browser cookie store behind it.
type MemoryJar struct {
	values map[string]string
}

func NewMemoryJar() *MemoryJar {
	return &MemoryJar{values: make(map[string]string)}
}

func (j *MemoryJar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok && v != ""
}

func (j *MemoryJar) Set(cookie *http.Cookie) {
	if cookie.MaxAge < 0 {
		delete(j.values, cookie.Name)
		return
	}
	j.values[cookie.Name] = cookie.Value
}

func (j *MemoryJar) Delete(name string) {
	delete(j.values, name)
}
