package search

import "fmt"

// Kind classifies why a fetch failed.
type Kind int

const (
	KindTransport Kind = iota
	KindHTTPStatus
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http status"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError is returned by Client.Fetch for every failure.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("search: status %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("search: %s error: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("search: %s error: %s", e.Kind, e.Message)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }
