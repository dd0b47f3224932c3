// Package i18n provides localized user-facing player messages.
package i18n

import "fmt"

const (
	// DefaultLanguage is the fallback when no translation is available.
	DefaultLanguage = "en"
	// Chinese is the language of the original service's audience.
	Chinese = "zh"
)

// Message keys.
const (
	MsgTopNewSongs       = "playlist.top_new_songs"
	MsgDailyRecommend    = "playlist.daily_recommend"
	MsgCannotPlayTrack   = "play.cannot_play_track"
	MsgPlaylistExhausted = "play.playlist_exhausted"
	MsgNoSongSelected    = "play.no_song_selected"
	MsgLikeSuccess       = "like.success"
	MsgLikeFailed        = "like.failed"
	MsgUnlikeSuccess     = "like.removed"
)

// Localizer translates message keys for one configured language.
type Localizer struct {
	language string
	messages map[string]string
}

func NewLocalizer(language string) *Localizer {
	return &Localizer{
		language: language,
		messages: getMessages(language),
	}
}

// T translates a message key, with optional fmt parameters.
func (l *Localizer) T(key string, args ...interface{}) string {
	if message, exists := l.messages[key]; exists {
		if len(args) > 0 {
			return fmt.Sprintf(message, args...)
		}
		return message
	}
	if l.language != DefaultLanguage {
		if fallback, exists := getMessages(DefaultLanguage)[key]; exists {
			if len(args) > 0 {
				return fmt.Sprintf(fallback, args...)
			}
			return fallback
		}
	}
	return key
}

// GetSupportedLanguages returns the supported language codes.
func GetSupportedLanguages() []string {
	return []string{DefaultLanguage, Chinese}
}

func getMessages(language string) map[string]string {
	switch language {
	case Chinese:
		return messagesZH
	default:
		return messagesEN
	}
}
