// Package main provides the entry point for the prospectcrawl CLI.
//
// prospectcrawl crawls company websites and extracts prospecting data:
// emails with a quality analysis, people, phone numbers, social profiles,
// technologies, images and page metadata.
//
// Usage:
//
//	prospectcrawl crawl <url>
//	prospectcrawl crawl --list <file>
//	prospectcrawl history <url>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
