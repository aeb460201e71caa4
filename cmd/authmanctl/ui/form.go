package ui

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/redmonkez12/authman/internal/user"
)

// Credentials collected by RunUserForm
type Credentials struct {
	Email    string
	Password string
}

// RunUserForm asks for the email (prefilled when given) and a confirmed password.
func RunUserForm(email string) (*Credentials, error) {
	var password, confirm string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("user@example.com").
				Value(&email).
				Validate(ValidateEmail),

			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(ValidatePassword),

			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != password {
						return fmt.Errorf("passwords do not match")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeCatppuccin())

	if err := form.Run(); err != nil {
		return nil, err
	}

	return &Credentials{Email: user.NormalizeEmail(email), Password: password}, nil
}

// ValidateEmail rejects input the server would refuse as an email
func ValidateEmail(s string) error {
	s = user.NormalizeEmail(s)
	if s == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidatePassword rejects passwords bcrypt cannot take
func ValidatePassword(s string) error {
	if s == "" {
		return fmt.Errorf("password is required")
	}
	if len(s) > 72 {
		return fmt.Errorf("password must be at most 72 bytes")
	}
	return nil
}

// PrintUser prints the stored account
func PrintUser(u *user.User) {
	fmt.Println(titleStyle.Render("User"))
	fmt.Printf("  ID:      %s\n", u.ID)
	fmt.Printf("  Email:   %s\n", u.Email)
	fmt.Printf("  Created: %s\n", u.CreatedAt.Format(time.RFC3339))
	fmt.Println()
}

// PrintResetLink prints a reset link and when it stops working
func PrintResetLink(u *user.User, link string, expiresAt time.Time) {
	fmt.Println(titleStyle.Render("Password reset for " + u.Email))
	fmt.Println("  " + linkStyle.Render(link))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  Valid until %s. Issuing another link invalidates this one.", expiresAt.Format(time.RFC3339))))
	fmt.Println()
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Println(successStyle.Render(msg))
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(errorStyle.Render("Error: " + strings.TrimSpace(msg)))
}
