package store

import "time"

// User is a registered account. PasswordHash holds a bcrypt hash.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is keyed 1:1 with User and overwritten in place on every save.
type Profile struct {
	UserID    int64     `json:"user_id"`
	Bio       string    `json:"bio"`
	ImageURL  string    `json:"profile_image_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Purpose is a posted intent. OwnerName is filled on reads for display.
type Purpose struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"user_id"`
	OwnerName   string    `json:"username,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Interest records a swipe right.
type Interest struct {
	UserID    int64     `json:"user_id"`
	PurposeID int64     `json:"purpose_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SeenMarker records a swipe left.
type SeenMarker struct {
	UserID    int64     `json:"user_id"`
	PurposeID int64     `json:"purpose_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Match is pending while AcceptedByInterestedUser is false and mutual once
// it flips to true. There is at most one per (PurposeID, InterestedUserID).
type Match struct {
	PurposeID                int64     `json:"purpose_id"`
	PosterID                 int64     `json:"poster_id"`
	InterestedUserID         int64     `json:"interested_user_id"`
	AcceptedByInterestedUser bool      `json:"accepted_by_interested_user"`
	CreatedAt                time.Time `json:"created_at"`
}

// Message is an immutable chat log entry.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"timestamp"`
}

// Participant is the display data of a user: username plus profile fields.
// Bio and ImageURL are empty when the user never saved a profile.
type Participant struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	ImageURL string `json:"profile_image_url"`
}

// InterestView is an interest joined with the purpose it targets.
type InterestView struct {
	Purpose          Purpose
	InterestedUserID int64
	CreatedAt        time.Time
}

// MatchView is a match joined with its purpose.
type MatchView struct {
	Match   Match
	Purpose Purpose
}

// conversationKey orders a pair so {a,b} and {b,a} map to the same key.
func conversationKey(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
