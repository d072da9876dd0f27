// Package useragent recognizes link-preview crawlers from chat and social apps.
package useragent

import "strings"

var crawlers = []string{
	"discordbot",
	"slackbot",
	"twitterbot",
	"facebookexternalhit",
	"linkedinbot",
	"telegrambot",
	"whatsapp",
	"skypeuripreview",
	"bitlybot",
	"vkshare",
	"pinterest",
	"redditbot",
	"quora link preview",
	"mastodon",
	"embedly",
}

// IsCrawler reports whether ua belongs to a known link-preview bot.
func IsCrawler(ua string) bool {
	if ua == "" {
		return false
	}
	ua = strings.ToLower(ua)
	for _, c := range crawlers {
		if strings.Contains(ua, c) {
			return true
		}
	}
	return false
}
