package wechat

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the management console host
	BaseURL = "https://mp.weixin.qq.com"

	// SearchEndpoint looks up official accounts by name
	SearchEndpoint = "/cgi-bin/searchbiz"

	// ListEndpoint pages through an account's published articles
	ListEndpoint = "/cgi-bin/appmsg"

	// PageSize is the number of items the listing endpoint returns per page
	PageSize = 5

	// searchCount is how many candidates the search endpoint returns
	searchCount = 5
)

// Provider status codes carried in base_resp.ret
const (
	RetOK             = 0
	RetInvalidArgs    = 200002
	RetInvalidSession = 200003
	RetFreqControl    = 200013
)

func searchURL(base, token, query string) string {
	params := url.Values{}
	params.Set("action", "search_biz")
	params.Set("begin", "0")
	params.Set("count", strconv.Itoa(searchCount))
	params.Set("query", query)
	params.Set("token", token)
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")
	return strings.TrimRight(base, "/") + SearchEndpoint + "?" + params.Encode()
}

func listURL(base, token, fakeid string, offset, count int) string {
	params := url.Values{}
	params.Set("action", "list_ex")
	params.Set("begin", strconv.Itoa(offset))
	params.Set("count", strconv.Itoa(count))
	params.Set("fakeid", fakeid)
	params.Set("type", "9")
	params.Set("query", "")
	params.Set("token", token)
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")
	return strings.TrimRight(base, "/") + ListEndpoint + "?" + params.Encode()
}
