package i18n

var messagesEN = map[string]string{
	MsgTopNewSongs:       "New Songs Chart",
	MsgDailyRecommend:    "Daily Recommendations",
	MsgCannotPlayTrack:   "Cannot play this track",
	MsgPlaylistExhausted: "No playable tracks left in this playlist",
	MsgNoSongSelected:    "No song selected",
	MsgLikeSuccess:       "Added to liked songs",
	MsgLikeFailed:        "Could not add to liked songs",
	MsgUnlikeSuccess:     "Removed from liked songs",
}
