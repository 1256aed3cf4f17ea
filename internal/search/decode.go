package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// mediaBase resolves the relative multimedia paths the API returns.
const mediaBase = "https://www.nytimes.com/"

// RawItem is one docs entry as returned by the API. Empty strings mean the
// field was absent.
type RawItem struct {
	Headline string
	Abstract string
	Byline   string
	ImageURL string
}

type envelope struct {
	Response *struct {
		Docs *[]doc `json:"docs"`
	} `json:"response"`
}

type doc struct {
	Headline   textField  `json:"headline"`
	Abstract   textField  `json:"abstract"`
	Byline     textField  `json:"byline"`
	Multimedia mediaField `json:"multimedia"`
}

// textField accepts {"main": "..."} / {"original": "..."} objects as well as
// bare strings. Unquoted scalars keep their literal text; other shapes are
// treated as absent.
type textField string

func (t *textField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if data[0] != '{' {
		*t = textField(scalarText(data))
		return nil
	}
	var obj struct {
		Main     json.RawMessage `json:"main"`
		Original json.RawMessage `json:"original"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if main := scalarText(obj.Main); main != "" {
		*t = textField(main)
	} else {
		*t = textField(scalarText(obj.Original))
	}
	return nil
}

// scalarText returns a JSON string's value, or the raw text of a number or
// boolean. null, arrays and objects yield "".
func scalarText(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	}
	return string(data)
}

type mediaEntry struct {
	URL  textField `json:"url"`
	Type textField `json:"type"`
}

// mediaField holds the resolved image URL. The API has shipped multimedia
// both as an array of entries and as an object keyed by crop name.
type mediaField string

func (m *mediaField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '[':
		var entries []mediaEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		*m = mediaField(pickEntry(entries))
	case '{':
		var crops struct {
			Default   *mediaEntry `json:"default"`
			Thumbnail *mediaEntry `json:"thumbnail"`
		}
		if err := json.Unmarshal(data, &crops); err != nil {
			return err
		}
		switch {
		case crops.Default != nil && crops.Default.URL != "":
			*m = mediaField(string(crops.Default.URL))
		case crops.Thumbnail != nil:
			*m = mediaField(string(crops.Thumbnail.URL))
		}
	}
	return nil
}

func pickEntry(entries []mediaEntry) string {
	for _, e := range entries {
		if e.Type == "image" && e.URL != "" {
			return string(e.URL)
		}
	}
	for _, e := range entries {
		if e.URL != "" {
			return string(e.URL)
		}
	}
	return ""
}

func resolveMediaURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return raw
	}
	base, _ := url.Parse(mediaBase)
	return base.ResolveReference(u).String()
}

var errMissingDocs = errors.New("response.docs missing")

// decode parses a search response body into raw items, preserving order.
func decode(body []byte) ([]RawItem, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Response == nil || env.Response.Docs == nil {
		return nil, errMissingDocs
	}

	docs := *env.Response.Docs
	items := make([]RawItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, RawItem{
			Headline: string(d.Headline),
			Abstract: string(d.Abstract),
			Byline:   string(d.Byline),
			ImageURL: resolveMediaURL(string(d.Multimedia)),
		})
	}
	return items, nil
}
