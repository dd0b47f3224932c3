package i18n

var messagesZH = map[string]string{
	MsgTopNewSongs:       "新歌榜",
	MsgDailyRecommend:    "每日推荐歌曲",
	MsgCannotPlayTrack:   "无法播放该歌曲",
	MsgPlaylistExhausted: "歌单中没有可播放的歌曲",
	MsgNoSongSelected:    "无选中歌曲",
	MsgLikeSuccess:       "收藏成功",
	MsgLikeFailed:        "收藏到我喜欢的音乐失败",
	MsgUnlikeSuccess:     "已取消收藏",
}
