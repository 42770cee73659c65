package cdptab

import (
	"sync"

	"github.com/chromedp/cdproto/network"
)

// Request is one in-flight or settled network request observed on the tab.
type Request struct {
	id network.RequestID

	mu          sync.Mutex
	url         string
	method      string
	documentURL string
	failure     string
	response    *Response
}

// URL returns the request URL.
func (r *Request) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// Method returns the request's HTTP method.
func (r *Request) Method() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.method
}

// DocumentURL returns the URL of the document this request loads for.
func (r *Request) DocumentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.documentURL
}

// Response returns the response received for this request, or nil if none
// has arrived.
func (r *Request) Response() *Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response
}

// Failure returns the protocol error text for a failed request, or "".
func (r *Request) Failure() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// Response describes the response received for one request.
type Response struct {
	url        string
	status     int64
	statusText string
	mimeType   string
	headers    network.Headers
	request    *Request
}

// URL returns the response URL.
func (r *Response) URL() string { return r.url }

// Status returns the HTTP status code.
func (r *Response) Status() int64 { return r.status }

// StatusText returns the HTTP status text.
func (r *Response) StatusText() string { return r.statusText }

// MimeType returns the resource mime type as reported by the browser.
func (r *Response) MimeType() string { return r.mimeType }

// Headers returns the response headers.
func (r *Response) Headers() network.Headers { return r.headers }

// Request returns the request this response answers.
func (r *Response) Request() *Request { return r.request }

func (p *Page) onRequestWillBeSent(ev *network.EventRequestWillBeSent) {
	req := &Request{
		id:          ev.RequestID,
		url:         ev.Request.URL,
		method:      ev.Request.Method,
		documentURL: ev.DocumentURL,
	}
	p.mu.Lock()
	p.requests[ev.RequestID] = req
	p.mu.Unlock()
	p.emit(EventRequest, req)
}

func (p *Page) onResponseReceived(ev *network.EventResponseReceived) {
	p.mu.Lock()
	req := p.requests[ev.RequestID]
	p.mu.Unlock()
	if req == nil {
		return
	}
	resp := &Response{
		url:        ev.Response.URL,
		status:     ev.Response.Status,
		statusText: ev.Response.StatusText,
		mimeType:   ev.Response.MimeType,
		headers:    ev.Response.Headers,
		request:    req,
	}
	req.mu.Lock()
	req.response = resp
	req.mu.Unlock()
	p.emit(EventResponse, resp)
}

func (p *Page) onLoadingFailed(ev *network.EventLoadingFailed) {
	p.mu.Lock()
	req := p.requests[ev.RequestID]
	delete(p.requests, ev.RequestID)
	p.mu.Unlock()
	if req == nil {
		return
	}
	req.mu.Lock()
	req.failure = ev.ErrorText
	req.mu.Unlock()
	p.emit(EventRequestFailed, req)
}

func (p *Page) onLoadingFinished(ev *network.EventLoadingFinished) {
	p.mu.Lock()
	req := p.requests[ev.RequestID]
	delete(p.requests, ev.RequestID)
	p.mu.Unlock()
	if req == nil {
		return
	}
	p.emit(EventRequestFinished, req)
}
