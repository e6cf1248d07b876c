package mail

import (
	"context"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/robolearn/learning-backend/internal/config"
	"github.com/robolearn/learning-backend/internal/models"
)

// Mailer отправляет письма платформы через SMTP.
type Mailer struct {
	cfg *config.Config
}

// NewMailer создаёт почтовый сервис.
func NewMailer(cfg *config.Config) (*Mailer, error) {
	if cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("mail: адрес отправителя обязателен")
	}

	return &Mailer{cfg: cfg}, nil
}

// SendOTP отправляет письмо с кодом подтверждения.
func (m *Mailer) SendOTP(ctx context.Context, email, code, purpose string) error {
	subject := otpSubject(purpose)
	body := otpBody(purpose, code)
	return m.send(ctx, email, subject, body)
}

// SendWelcome отправляет приветственное письмо после активации аккаунта.
func (m *Mailer) SendWelcome(ctx context.Context, email, username string) error {
	body := fmt.Sprintf(`Welcome to RoboLearn, %s!

Your account is now active. Start learning robotics today:
enroll in a course, run your first simulation and earn your first badge.

Best regards,
The RoboLearn Team
`, username)

	return m.send(ctx, email, "Welcome to RoboLearn", body)
}

// otpSubject возвращает тему письма для назначения кода.
func otpSubject(purpose string) string {
	switch purpose {
	case models.OTPPurposeRegistration:
		return "Verify Your RoboLearn Account"
	case models.OTPPurposePasswordReset:
		return "Reset Your RoboLearn Password"
	case models.OTPPurposeEmailChange:
		return "Verify Your New Email Address"
	default:
		return "RoboLearn Verification Code"
	}
}

// otpBody возвращает текст письма для назначения кода.
func otpBody(purpose, code string) string {
	switch purpose {
	case models.OTPPurposeRegistration:
		return fmt.Sprintf(`Welcome to RoboLearn!

Your verification code is: %s

This code will expire in 10 minutes. Please use it to verify your account.

If you didn't create an account with RoboLearn, please ignore this email.

Best regards,
The RoboLearn Team
`, code)
	case models.OTPPurposePasswordReset:
		return fmt.Sprintf(`Password Reset Request

Your password reset code is: %s

This code will expire in 10 minutes. Use it to reset your password.

If you didn't request a password reset, please ignore this email.

Best regards,
The RoboLearn Team
`, code)
	case models.OTPPurposeEmailChange:
		return fmt.Sprintf(`Email Change Verification

Your email change verification code is: %s

This code will expire in 10 minutes.

If you didn't request an email change, please contact support immediately.

Best regards,
The RoboLearn Team
`, code)
	default:
		return fmt.Sprintf("Your verification code is: %s", code)
	}
}

// send формирует и отправляет письмо.
func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()

	if m.cfg.SMTPFromName != "" {
		if err := msg.FromFormat(m.cfg.SMTPFromName, m.cfg.SMTPFrom); err != nil {
			return fmt.Errorf("mail: некорректный адрес отправителя: %w", err)
		}
	} else {
		if err := msg.From(m.cfg.SMTPFrom); err != nil {
			return fmt.Errorf("mail: некорректный адрес отправителя: %w", err)
		}
	}

	if err := msg.To(strings.TrimSpace(to)); err != nil {
		return fmt.Errorf("mail: некорректный адрес получателя: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.SMTPPort),
	}

	if m.cfg.SMTPUseTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
		// Порт 465 подразумевает implicit TLS, остальные — STARTTLS.
		if m.cfg.SMTPPort == 465 {
			opts = append(opts, gomail.WithSSL())
		}
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	if m.cfg.SMTPUsername != "" && m.cfg.SMTPPassword != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.SMTPUsername),
			gomail.WithPassword(m.cfg.SMTPPassword),
		)
	}

	client, err := gomail.NewClient(m.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("mail: не удалось создать SMTP клиент: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: не удалось отправить письмо: %w", err)
	}

	return nil
}
