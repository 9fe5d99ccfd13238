package transport

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ActivateRequest struct {
	UserID          string `json:"user_id"`
	OTP             string `json:"otp"`
	DisplayName     string `json:"display_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ResetRequest struct {
	Email string `json:"email"`
}

type ResetConfirmRequest struct {
	UserID          string `json:"user_id"`
	OTP             string `json:"otp"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// PasswordCheckRequest carries the candidate password plus account fields the
// evaluator should penalize when they appear in the password.
type PasswordCheckRequest struct {
	CandidateID string `json:"candidate_id"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Confirm     string `json:"confirm"`
}

type InviteRequest struct {
	Email string `json:"email"`
}

type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}
