// Package main provides the entry point for the gubacrawl CLI.
//
// gubacrawl collects the comment listings of guba.eastmoney.com stock
// forums, one CSV file per stock, rotating through rented proxies.
//
// Usage:
//
//	gubacrawl crawl <target-id>...
//	gubacrawl crawl --all
//
// See --help for all available options.
package main

func main() {
	Execute()
}
