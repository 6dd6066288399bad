package user

import (
	"credpost/internal/core/user"
)

type UserDTO struct {
	Address          string `json:"address"`
	CredibilityScore string `json:"credibilityScore"`
	SuccessfulPosts  string `json:"successfulPosts"`
}

// NewUserDTO returns nil for a nil user so absent reads stay absent.
func NewUserDTO(u *user.User) *UserDTO {
	if u == nil {
		return nil
	}
	dto := &UserDTO{Address: u.Address.Hex()}
	if u.CredibilityScore != nil {
		dto.CredibilityScore = u.CredibilityScore.String()
	}
	if u.SuccessfulPosts != nil {
		dto.SuccessfulPosts = u.SuccessfulPosts.String()
	}
	return dto
}
