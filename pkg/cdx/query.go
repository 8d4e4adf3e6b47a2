package cdx

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

// FieldOrder is the column list requested from every CDX endpoint. Row
// parsing assumes this order.
const FieldOrder = "timestamp,original,mimetype,statuscode,digest,length"

// Query describes one CDX API request. The zero value of Page means "unset";
// page indexes are zero-based on the wire.
type Query struct {
	Target         string
	From           string // YYYYMMDD
	To             string // YYYYMMDD
	MatchType      model.MatchType
	PageSize       int
	Page           int // negative means unset
	ResumeKey      string
	ShowNumPages   bool
	CollapseDigest bool
	MimeTypes      []string
	MinLength      int64
	MaxLength      int64
	URLFilter      string // regex over the original URL, provider side
}

// NewQuery returns a Query with Page unset.
func NewQuery(target string) Query {
	return Query{Target: target, Page: -1, CollapseDigest: true}
}

// Values renders the query as CDX API parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("url", q.Target)
	v.Set("output", "json")
	v.Set("fl", FieldOrder)
	if q.From != "" {
		v.Set("from", q.From)
	}
	if q.To != "" {
		v.Set("to", q.To)
	}
	if q.MatchType != "" {
		v.Set("matchType", string(q.MatchType))
	}
	if q.CollapseDigest {
		v.Set("collapse", "digest")
	}

	v.Add("filter", "statuscode:200")
	if len(q.MimeTypes) > 0 {
		v.Add("filter", "mimetype:"+strings.Join(q.MimeTypes, "|"))
	}
	if q.MinLength > 0 || q.MaxLength > 0 {
		v.Add("filter", "length:["+strconv.FormatInt(q.MinLength, 10)+" TO "+maxLengthBound(q.MaxLength)+"]")
	}
	if q.URLFilter != "" {
		v.Add("filter", "original:"+q.URLFilter)
	}

	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.Page >= 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.ResumeKey != "" {
		v.Set("resumeKey", q.ResumeKey)
	}
	if q.ShowNumPages {
		v.Set("showNumPages", "true")
	}
	return v
}

// URL renders the full request URL against the given endpoint base.
func (q Query) URL(base string) string {
	return base + "?" + q.Values().Encode()
}

func maxLengthBound(max int64) string {
	if max <= 0 {
		return "*"
	}
	return strconv.FormatInt(max, 10)
}
