package models

// LoginRequest is the body of a sign-in. Login matches a username or an email.
type LoginRequest struct {
	Login    string  `json:"username"`
	Password string  `json:"password"`
	FCMToken *string `json:"fcmToken,omitempty"`
}

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds until the access token expires
}

// Session is the response to a successful sign-in.
type Session struct {
	User *User `json:"user"`
	TokenPair
}

// PasswordChange is the body of a password change.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}
