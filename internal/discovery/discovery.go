// ABOUTME: Deterministic destination-channel selection for unbound phone numbers
// ABOUTME: Reserved aliases first, then fallback aliases, then the first text channel

package discovery

import (
	"strings"

	"github.com/2389/smsrelay/internal/chat"
)

// Default aliases used when none are configured.
var (
	DefaultReserved = []string{"sms", "bot"}
	DefaultFallback = []string{"general"}
)

// Policy lists channel names in preference order. Matching ignores case and
// a leading '#'.
type Policy struct {
	Reserved []string
	Fallback []string
}

// DefaultPolicy returns the sms/bot then general policy.
func DefaultPolicy() Policy {
	return Policy{Reserved: DefaultReserved, Fallback: DefaultFallback}
}

// Tier reports which rule selected a channel.
type Tier int

const (
	TierNone Tier = iota
	TierReserved
	TierFallback
	TierFirstText
)

func (t Tier) String() string {
	switch t {
	case TierReserved:
		return "reserved"
	case TierFallback:
		return "fallback"
	case TierFirstText:
		return "first-text"
	default:
		return "none"
	}
}

// SelectChannel picks a destination channel from snap. Each alias is tried in
// declared order across every workspace before the next alias is tried, so
// "sms" in a later workspace beats "bot" in the first one. When no alias
// matches, the first text-capable channel in snapshot order wins. The second
// return is TierNone and the channel zero when nothing is text-capable.
func SelectChannel(snap chat.Snapshot, p Policy) (chat.Channel, Tier) {
	if ch, ok := firstNamed(snap, p.Reserved); ok {
		return ch, TierReserved
	}
	if ch, ok := firstNamed(snap, p.Fallback); ok {
		return ch, TierFallback
	}
	for _, ws := range snap {
		for _, ch := range ws.Channels {
			if ch.TextCapable {
				return ch, TierFirstText
			}
		}
	}
	return chat.Channel{}, TierNone
}

func firstNamed(snap chat.Snapshot, aliases []string) (chat.Channel, bool) {
	for _, alias := range aliases {
		want := normalize(alias)
		if want == "" {
			continue
		}
		for _, ws := range snap {
			for _, ch := range ws.Channels {
				if ch.TextCapable && normalize(ch.Name) == want {
					return ch, true
				}
			}
		}
	}
	return chat.Channel{}, false
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}
