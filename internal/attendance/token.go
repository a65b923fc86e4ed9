package attendance

import (
	"sync"
	"time"
)

// DefaultTokenWindow is how long a freshly minted token stays valid.
const DefaultTokenWindow = 30 * time.Second

// Token is the time-boxed credential displayed to students during a session.
type Token struct {
	CourseID  string    `json:"courseId"`
	SessionID string    `json:"sessionId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Matches reports whether other is the same credential as t.
// The issue time distinguishes successive tokens of one session.
func (t Token) Matches(other Token) bool {
	return t.SessionID == other.SessionID &&
		t.CourseID == other.CourseID &&
		t.IssuedAt.Equal(other.IssuedAt) &&
		t.ExpiresAt.Equal(other.ExpiresAt)
}

// Issuer mints tokens against a clock. Issue times strictly increase, so
// two tokens are never equal even when the clock has not moved.
type Issuer struct {
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewIssuer creates an issuer. A nil clock means time.Now.
func NewIssuer(now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{now: now}
}

// Issue returns a token for sessionID valid for window from now.
func (i *Issuer) Issue(sessionID, courseID string, window time.Duration) Token {
	if window <= 0 {
		window = DefaultTokenWindow
	}
	issued := i.now().UTC()
	i.mu.Lock()
	if !issued.After(i.last) {
		issued = i.last.Add(time.Nanosecond)
	}
	i.last = issued
	i.mu.Unlock()
	return Token{
		CourseID:  courseID,
		SessionID: sessionID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(window),
	}
}
