package message

import "time"

// Decision is the admission outcome for a normalized message.
type Decision int

const (
	Accept Decision = iota
	// RejectUnsupportedType drops the message silently.
	RejectUnsupportedType
	// RejectStale drops messages older than the cutoff, typically webhook retries.
	RejectStale
	// RejectMediaType drops the message and the caller tells the user why.
	RejectMediaType
	// RejectSandbox drops messages from anyone but the sandbox user.
	RejectSandbox
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectUnsupportedType:
		return "unsupported_type"
	case RejectStale:
		return "stale"
	case RejectMediaType:
		return "media_type_disabled"
	case RejectSandbox:
		return "sandbox"
	default:
		return "unknown"
	}
}

// AudioPolicy controls what happens to voice messages.
type AudioPolicy string

const (
	// AudioNotify rejects audio and lets the caller send an explanatory notice.
	AudioNotify AudioPolicy = "notify"
	// AudioIgnore drops audio silently like any unsupported type.
	AudioIgnore AudioPolicy = "ignore"
	// AudioAccept forwards audio to the backend by media id.
	AudioAccept AudioPolicy = "accept"
)

// Valid reports whether p is a known policy.
func (p AudioPolicy) Valid() bool {
	switch p {
	case AudioNotify, AudioIgnore, AudioAccept:
		return true
	}
	return false
}

// Policy holds the admission rules.
type Policy struct {
	// Cutoff is the maximum message age. Zero disables the staleness check.
	Cutoff time.Duration
	Audio  AudioPolicy
	// SandboxUser, when set, is the only sender whose messages are admitted.
	SandboxUser string
}

// Admit classifies msg with the default policy: audio is rejected with a
// user-visible notice and there is no sandbox restriction.
func Admit(msg IncomingMessage, now time.Time, cutoff time.Duration) Decision {
	return Policy{Cutoff: cutoff, Audio: AudioNotify}.Admit(msg, now)
}

// Admit classifies msg. Checks run in order: type, age, sandbox, audio policy.
func (p Policy) Admit(msg IncomingMessage, now time.Time) Decision {
	if msg.Type != TypeText && msg.Type != TypeAudio {
		return RejectUnsupportedType
	}
	if p.Cutoff > 0 && msg.Timestamp < now.Add(-p.Cutoff).Unix() {
		return RejectStale
	}
	if p.SandboxUser != "" && msg.UserID != p.SandboxUser {
		return RejectSandbox
	}
	if msg.Type == TypeAudio {
		switch p.Audio {
		case AudioAccept:
			return Accept
		case AudioIgnore:
			return RejectUnsupportedType
		default:
			return RejectMediaType
		}
	}
	return Accept
}
