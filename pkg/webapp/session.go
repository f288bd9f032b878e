package webapp

import "strings"

// Session holds the Mini-App user for the lifetime of the process. It is the
// ambient state the bridge and the storefront read the current user from.
// A Session is immutable after construction.
type Session struct {
	user     *User
	platform string
	queryID  string
}

func NewSession(data InitData, platform string) *Session {
	s := &Session{platform: strings.TrimSpace(platform), queryID: data.QueryID}
	if data.User != nil {
		user := *data.User
		s.user = &user
	}
	return s
}

// UserID returns the authenticated user id, if any.
func (s *Session) UserID() (int64, bool) {
	if s == nil || s.user == nil {
		return 0, false
	}
	return s.user.ID, true
}

// User returns a copy of the session user.
func (s *Session) User() (User, bool) {
	if s == nil || s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *Session) Platform() string {
	if s == nil {
		return ""
	}
	return s.platform
}

// QueryID is the query_id Telegram issued with initData, if any.
func (s *Session) QueryID() string {
	if s == nil {
		return ""
	}
	return s.queryID
}
