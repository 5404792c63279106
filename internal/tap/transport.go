package tap

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

// Transport is an http.RoundTripper that hands a copy of every interesting
// response body to an Inspector. The caller receives the original response;
// the copy is taken as the caller reads, and inspection starts on its own
// goroutine once the body has been read to EOF or closed.
type Transport struct {
	base      http.RoundTripper
	inspector *Inspector
}

// Wrap returns base wrapped so that its responses are tapped. A nil base
// means http.DefaultTransport.
func Wrap(base http.RoundTripper, inspector *Inspector) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, inspector: inspector}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	t.inspector.attach(url, resp)
	return resp, nil
}

// attach swaps resp.Body for a tee when the response is worth inspecting.
func (i *Inspector) attach(url string, resp *http.Response) {
	if resp == nil || resp.Body == nil || resp.Body == http.NoBody {
		return
	}
	ct := resp.Header.Get("Content-Type")
	if !i.Wants(url, ct) {
		return
	}
	if resp.ContentLength > i.maxBody {
		return
	}
	resp.Body = &teeBody{
		rc:    resp.Body,
		limit: i.maxBody,
		done: func(body []byte) {
			i.inspectAsync(url, ct, body)
		},
	}
}

// teeBody copies what the reader consumes, up to limit bytes. The copy is
// handed to done exactly once: at EOF, or on Close, after draining whatever
// the reader left unread. Bodies larger than limit or cut short by a read
// error are not handed over.
type teeBody struct {
	rc       io.ReadCloser
	buf      bytes.Buffer
	limit    int64
	overflow bool
	finished bool
	once     sync.Once
	done     func([]byte)
}

func (b *teeBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 && !b.overflow {
		if int64(b.buf.Len()+n) > b.limit {
			b.overflow = true
			b.buf.Reset()
		} else {
			b.buf.Write(p[:n])
		}
	}
	if err != nil {
		b.finished = true
		if errors.Is(err, io.EOF) && !b.overflow {
			b.handOff()
		}
	}
	return n, err
}

// Close drains what the reader left unread, as after a json.Decoder stops
// at the end of a value, and hands the copy off before closing.
func (b *teeBody) Close() error {
	if !b.finished && !b.overflow {
		b.finished = true
		b.drain()
	}
	return b.rc.Close()
}

func (b *teeBody) drain() {
	remaining := b.limit - int64(b.buf.Len())
	n, err := io.CopyN(&b.buf, b.rc, remaining+1)
	if n > remaining {
		b.overflow = true
		b.buf.Reset()
		return
	}
	// Short of remaining+1 bytes, CopyN reports io.EOF on a clean end.
	if !errors.Is(err, io.EOF) {
		return
	}
	b.handOff()
}

func (b *teeBody) handOff() {
	b.once.Do(func() {
		body := append([]byte(nil), b.buf.Bytes()...)
		b.done(body)
	})
}

// Callback receives the outcome of a callback-style request.
type Callback func(resp *http.Response, err error)

// CallbackTransport is a transport that reports completion through a
// callback instead of returning the response.
type CallbackTransport interface {
	Send(req *http.Request, done Callback)
}

// CallbackFunc adapts a plain function to CallbackTransport.
type CallbackFunc func(req *http.Request, done Callback)

// Send implements CallbackTransport.
func (f CallbackFunc) Send(req *http.Request, done Callback) { f(req, done) }

// FromRoundTripper turns a RoundTripper into a CallbackTransport that runs
// each request on its own goroutine.
func FromRoundTripper(rt http.RoundTripper) CallbackTransport {
	return CallbackFunc(func(req *http.Request, done Callback) {
		go func() {
			done(rt.RoundTrip(req))
		}()
	})
}

type callbackTap struct {
	base      CallbackTransport
	inspector *Inspector
}

// WrapCallback returns base wrapped so that responses delivered to the
// callback are tapped the same way Wrap taps a RoundTripper.
func WrapCallback(base CallbackTransport, inspector *Inspector) CallbackTransport {
	return &callbackTap{base: base, inspector: inspector}
}

func (c *callbackTap) Send(req *http.Request, done Callback) {
	url := req.URL.String()
	c.base.Send(req, func(resp *http.Response, err error) {
		if err == nil {
			c.inspector.attach(url, resp)
		}
		done(resp, err)
	})
}
