package transport

import "net/url"

// Request is a small query-building helper used by the repositories'
// request builders, so the billingTag query parameter name
// (SPEC_FULL §8 supplement) is applied consistently everywhere.
type Request struct {
	values url.Values
}

// NewRequest starts an empty query-parameter set.
func NewRequest() *Request {
	return &Request{values: url.Values{}}
}

// With sets a query parameter if value is non-empty, returning the
// receiver for chaining.
func (r *Request) With(key, value string) *Request {
	if value != "" {
		r.values.Set(key, value)
	}
	return r
}

// WithBillingTag sets the billingTag query parameter if tag is non-empty.
func (r *Request) WithBillingTag(tag string) *Request {
	return r.With("billingTag", tag)
}

// Encode returns the query string, including the leading "?" if non-empty.
func (r *Request) Encode() string {
	encoded := r.values.Encode()
	if encoded == "" {
		return ""
	}
	return "?" + encoded
}
