package domain

// MaxLastSeen bounds Board.LastSeenBy.
const MaxLastSeen = 10

// LastSeenEntry records the last time a user opened a board.
type LastSeenEntry struct {
	UserID     string `json:"userId" bson:"userId"`
	Fullname   string `json:"fullname" bson:"fullname"`
	ImgURL     string `json:"imgUrl,omitempty" bson:"imgUrl,omitempty"`
	LastSeenAt int64  `json:"lastSeenAt" bson:"lastSeenAt"`
}

// Viewer is a user currently connected to a board room.
type Viewer struct {
	UserID   string `json:"userId"`
	Fullname string `json:"fullname"`
	ImgURL   string `json:"imgUrl,omitempty"`
}

// Viewers is the display list of a board: live viewers first, then past
// viewers that are not live right now.
type Viewers struct {
	Live     []Viewer        `json:"live"`
	LastSeen []LastSeenEntry `json:"lastSeen"`
}

// TrackView returns a new history with entry moved to the front. Any older
// entry of the same user is dropped and the result is capped at MaxLastSeen.
func TrackView(history []LastSeenEntry, entry LastSeenEntry) []LastSeenEntry {
	if entry.Fullname == "" {
		entry.Fullname = "Unknown"
	}
	out := make([]LastSeenEntry, 0, min(len(history)+1, MaxLastSeen))
	out = append(out, entry)
	for _, e := range history {
		if len(out) == MaxLastSeen {
			break
		}
		if e.UserID == entry.UserID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// MergeViewers builds the display list, deduplicating live viewers and hiding
// history entries of users that are live.
func MergeViewers(live []Viewer, history []LastSeenEntry) Viewers {
	seen := make(map[string]struct{}, len(live))
	out := Viewers{Live: []Viewer{}, LastSeen: []LastSeenEntry{}}
	for _, v := range live {
		if _, dup := seen[v.UserID]; dup {
			continue
		}
		seen[v.UserID] = struct{}{}
		out.Live = append(out.Live, v)
	}
	for _, e := range history {
		if _, isLive := seen[e.UserID]; isLive {
			continue
		}
		out.LastSeen = append(out.LastSeen, e)
	}
	return out
}
