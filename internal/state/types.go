package state

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DBIdentity is the persisted projection of the authenticated identity.
type DBIdentity struct {
	ID          int64  `msgpack:"id"`
	Email       string `msgpack:"email"`
	Username    string `msgpack:"username"`
	AvatarRef   string `msgpack:"avatarRef"`
	PrivacyMode bool   `msgpack:"privacyMode"`
	CreatedAt   int64  `msgpack:"createdAt"`
	LastSeenAt  int64  `msgpack:"lastSeenAt"`
	IsActive    bool   `msgpack:"isActive"`
}

func (i *DBIdentity) MarshalBinary() (data []byte, err error) {
	type alias DBIdentity
	return msgpack.Marshal((*alias)(i))
}

func (i *DBIdentity) UnmarshalBinary(data []byte) error {
	type alias DBIdentity
	return msgpack.Unmarshal(data, (*alias)(i))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
