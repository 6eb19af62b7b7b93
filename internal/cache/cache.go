package cache

import (
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Response is a recorded HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type Storage interface {
	Get(key string) (Response, bool)
	Set(key string, res Response, duration time.Duration)
}

type entry struct {
	res     Response
	expires time.Time
}

// Memory is an in-process Storage. Expired entries are dropped on read.
type Memory struct {
	entries *xsync.MapOf[string, entry]
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: xsync.NewMapOf[string, entry](),
		now:     time.Now,
	}
}

func (m *Memory) Get(key string) (Response, bool) {
	e, ok := m.entries.Load(key)
	if !ok {
		return Response{}, false
	}
	if !m.now().Before(e.expires) {
		m.entries.Delete(key)
		return Response{}, false
	}
	return e.res, true
}

func (m *Memory) Set(key string, res Response, duration time.Duration) {
	m.entries.Store(key, entry{res: res, expires: m.now().Add(duration)})
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	return m.entries.Size()
}
