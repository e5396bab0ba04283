package main

import (
	"fmt"

	"voicechat/backend/internal/client"
	"voicechat/backend/internal/localization"
)

// describe turns a session event into one line for the terminal. Events with
// nothing to say render as "".
func describe(l *localization.Localizer, lang string, ev client.Event) string {
	switch ev.Kind {
	case client.EventState:
		return l.GetString(lang, "state."+string(ev.State))
	case client.EventMatched:
		role := "responder"
		if ev.Initiator {
			role = "initiator"
		}
		return fmt.Sprintf("%s (%s, room %s)", l.GetString(lang, "event.matched"), role, ev.RoomID)
	case client.EventCallEnded:
		return l.GetString(lang, "reason."+string(ev.Reason))
	case client.EventFailure:
		return l.GetString(lang, "failure."+string(ev.Failure))
	case client.EventNoUsers:
		return l.GetString(lang, "event.no-users")
	case client.EventTransport:
		return l.GetString(lang, "transport."+string(ev.Transport))
	case client.EventUserCount:
		return l.Format(lang, "event.user-count", ev.UserCount)
	case client.EventRedialScheduled:
		return l.GetString(lang, "event.redial")
	case client.EventMute:
		if ev.Muted {
			return l.GetString(lang, "event.muted")
		}
		return l.GetString(lang, "event.unmuted")
	}
	return ""
}
