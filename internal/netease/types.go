package netease

// Wire types for the cloud music HTTP gateway. Every response carries a
// numeric result code: 200 is success, 301 means the session cookie is no
// longer valid, anything else is a remote failure whose message is passed
// through.

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

type personalizedResponse struct {
	envelope
	Result []struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		PicURL string `json:"picUrl"`
	} `json:"result"`
}

type userPlaylistResponse struct {
	envelope
	Playlist []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		CoverImgURL string `json:"coverImgUrl"`
	} `json:"playlist"`
}

type trackID struct {
	ID int64 `json:"id"`
}

type artist struct {
	Name string `json:"name"`
}

type album struct {
	PicURL string `json:"picUrl"`
}

type track struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Artists    []artist `json:"ar"`
	DurationMs int64    `json:"dt"`
	Album      album    `json:"al"`
}

// privilege carries per-track availability flags. St below zero means the
// track was removed from the catalog; Fee 1 marks subscriber-only streams.
type privilege struct {
	ID  int64 `json:"id"`
	St  int   `json:"st"`
	Fee int   `json:"fee"`
}

type playlistDetailResponse struct {
	envelope
	Playlist struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		CoverImgURL string    `json:"coverImgUrl"`
		TrackIDs    []trackID `json:"trackIds"`
		Tracks      []track   `json:"tracks"`
	} `json:"playlist"`
	Privileges []privilege `json:"privileges"`
}

type recommendSongsResponse struct {
	envelope
	Data struct {
		DailySongs []track     `json:"dailySongs"`
		Privileges []privilege `json:"privileges"`
	} `json:"data"`
}

type songDetailResponse struct {
	envelope
	Songs      []track     `json:"songs"`
	Privileges []privilege `json:"privileges"`
}

type songURLResponse struct {
	envelope
	Data []struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
	} `json:"data"`
}

type profile struct {
	UserID   int64  `json:"userId"`
	Nickname string `json:"nickname"`
	VipType  int    `json:"vipType"`
}

type loginResponse struct {
	envelope
	Profile *profile `json:"profile"`
}

type loginStatusResponse struct {
	envelope
	Data struct {
		Code    int      `json:"code"`
		Profile *profile `json:"profile"`
	} `json:"data"`
}
