package events

import (
	"fmt"
	"strings"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
)

// ChannelPrefix starts every per-user channel name.
const ChannelPrefix = "private-user-"

// ChannelFor names userID's channel.
func ChannelFor(userID string) string {
	return ChannelPrefix + userID
}

// UserFromChannel extracts the owning user id from a channel name.
func UserFromChannel(channel string) (string, bool) {
	user, ok := strings.CutPrefix(channel, ChannelPrefix)
	if !ok || user == "" || strings.ContainsAny(user, " \t\r\n*#") {
		return "", false
	}
	return user, true
}

// Authorize allows actorID to subscribe to channel only if the channel is
// actorID's own. Anything else, malformed names included, is denied.
func Authorize(channel, actorID string) error {
	owner, ok := UserFromChannel(channel)
	if !ok || actorID == "" || owner != actorID {
		return fmt.Errorf("subscribe %q: %w", channel, domain.ErrUnauthorized)
	}
	return nil
}
