// Package proxy supplies outbound proxies to the crawler.
//
// A Pool leases proxies from a Source and enforces the vendor's minimum
// re-fetch interval: repeated Lease calls inside the interval return the
// same proxy, and MarkFailed replaces a broken proxy only once the interval
// allows it. Sources are the xiaoxiang vendor API (XiangSource) and a fixed
// list (StaticSource). NewHTTPClient turns a lease into an *http.Client for
// http, https or socks5 proxies.
package proxy
