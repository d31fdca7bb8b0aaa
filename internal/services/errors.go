package services

import (
	"errors"
	"fmt"

	"classsite/internal/repositories"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrUnauthenticated      = errors.New("Не авторизован")
	ErrForbidden            = errors.New("Доступ запрещен")
	ErrNotFound             = errors.New("Пользователь не найден")
	ErrConflict             = errors.New("Пользователь с таким телефоном или email уже существует")
	ErrInvalidCredentials   = errors.New("Неверный логин или пароль")
	ErrInvalidOrExpiredCode = errors.New("Неверный или просроченный код")
	ErrRateLimited          = errors.New("Слишком много попыток, попробуйте позже")
)

// ValidationError is a 400 with a message safe to show to the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validation(msg string) error { return &ValidationError{Msg: msg} }

// MessageError attaches a caller-facing message to one of the sentinels above.
type MessageError struct {
	Kind error
	Msg  string
}

func (e *MessageError) Error() string { return e.Msg }

func (e *MessageError) Is(target error) bool { return target == e.Kind }

func withMsg(kind error, msg string) error { return &MessageError{Kind: kind, Msg: msg} }

const (
	msgWeakPassword   = "Пароль должен содержать минимум 8 символов, включая заглавные и строчные латинские буквы, и цифры"
	msgBadPhone       = "Неверный формат телефона"
	msgBadEmail       = "Неверный формат email"
	msgPhoneOrEmail   = "Необходимо указать телефон или email"
	msgNameAndPass    = "ФИО и пароль обязательны"
	msgPhoneTaken     = "Этот телефон уже используется другим пользователем"
	msgEmailTaken     = "Этот email уже используется другим пользователем"
	msgPhoneRequired  = "Телефон обязателен"
	msgPhoneNotFound  = "Пользователь с таким телефоном не найден"
	msgCurrentNeeded  = "Для смены пароля необходимо ввести текущий пароль"
	msgCurrentInvalid = "Неверный текущий пароль"
	msgPasswordLong   = "Пароль не может быть длиннее 72 байт"
	msgNewWeak        = "Новый пароль должен содержать минимум 8 символов, включая заглавные и строчные латинские буквы, и цифры"
	msgBadCodeType    = "Недопустимый тип кода"
	msgPhoneAndCode   = "Телефон и код обязательны"
	msgResetRequired  = "Телефон, код и новый пароль обязательны"
	msgLoginRequired  = "Логин и пароль обязательны"
	msgSelfDelete     = "Нельзя удалить свою учетную запись"
)

// storeErr translates repository sentinels into service ones.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isServiceErr(err):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repositories.ErrConflict):
		return ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isServiceErr(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrUnauthenticated, ErrForbidden, ErrNotFound, ErrConflict,
		ErrInvalidCredentials, ErrInvalidOrExpiredCode, ErrRateLimited,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
