package chat

import (
	"strings"

	"github.com/castbot/castbot/sdk"
)

// Message is one parsed inbound chat line.
type Message struct {
	Channel string
	User    string
	Text    string
	Level   sdk.PermissionLevel
}

// parseLine decodes an IRC line in Twitch's dialect: an optional @tags
// prefix, a :source prefix, the command, and parameters. Returns ok=false
// for anything that is not a PRIVMSG.
func parseLine(line string) (Message, bool) {
	line = strings.TrimRight(line, "\r\n")

	var tags map[string]string
	if strings.HasPrefix(line, "@") {
		idx := strings.Index(line, " ")
		if idx < 0 {
			return Message{}, false
		}
		tags = parseTags(line[1:idx])
		line = line[idx+1:]
	}

	var source string
	if strings.HasPrefix(line, ":") {
		idx := strings.Index(line, " ")
		if idx < 0 {
			return Message{}, false
		}
		source = line[1:idx]
		line = line[idx+1:]
	}

	if !strings.HasPrefix(line, "PRIVMSG ") {
		return Message{}, false
	}
	line = strings.TrimPrefix(line, "PRIVMSG ")

	idx := strings.Index(line, " :")
	if idx < 0 {
		return Message{}, false
	}
	channel := strings.TrimPrefix(line[:idx], "#")
	text := line[idx+2:]

	user := source
	if bang := strings.Index(source, "!"); bang > 0 {
		user = source[:bang]
	}
	if name, ok := tags["display-name"]; ok && name != "" {
		user = name
	}

	return Message{
		Channel: channel,
		User:    user,
		Text:    text,
		Level:   levelFromTags(tags),
	}, true
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		if eq := strings.Index(pair, "="); eq >= 0 {
			tags[pair[:eq]] = pair[eq+1:]
		} else {
			tags[pair] = ""
		}
	}
	return tags
}

// levelFromTags maps badge tags onto the ordered permission levels.
func levelFromTags(tags map[string]string) sdk.PermissionLevel {
	badges := tags["badges"]
	switch {
	case strings.Contains(badges, "broadcaster/"):
		return sdk.LevelBroadcaster
	case strings.Contains(badges, "moderator/") || tags["mod"] == "1":
		return sdk.LevelModerator
	case strings.Contains(badges, "subscriber/") || tags["subscriber"] == "1":
		return sdk.LevelSubscriber
	default:
		return sdk.LevelEveryone
	}
}
