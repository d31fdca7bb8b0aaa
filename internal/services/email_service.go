package services

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"classsite/internal/config"
)

type EmailService interface {
	SendWelcomeEmail(email, fullName string) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailService returns nil when no SMTP host is configured.
func NewEmailService(cfg config.EmailConfig) EmailService {
	if cfg.SMTPHost == "" {
		return nil
	}
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	from := cfg.FromEmail
	if from == "" {
		from = cfg.SMTPUser
	}
	return &emailService{
		dialer: dialer,
		from:   from,
	}
}

func (s *emailService) SendWelcomeEmail(email, fullName string) error {
	m := welcomeMessage(s.from, email, fullName)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	return nil
}

func welcomeMessage(from, to, fullName string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Добро пожаловать на сайт класса 5Б")

	body := fmt.Sprintf(`
		<h2>Здравствуйте, %s!</h2>
		<p>Ваша учётная запись на сайте класса успешно создана.</p>
		<p>Для входа используйте телефон или email, указанные при регистрации.</p>
	`, html.EscapeString(fullName))

	m.SetBody("text/html", body)
	return m
}
