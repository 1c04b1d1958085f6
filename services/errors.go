package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Регистрация на турнир
	ErrRegistrationNotOpen = errors.New("tournament registration is not open")
	ErrTournamentFull      = errors.New("tournament registration is full")
	ErrUserMustBeCaptain   = errors.New("only the team captain can register the team")

	// Жизненный цикл турнира
	ErrTournamentNotUpcoming = errors.New("tournament has already started")
	ErrTournamentFinished    = errors.New("tournament has already finished")
	ErrNotEnoughTeamsToStart = errors.New("not enough registered teams to start the tournament")

	// Вето: локальные, восстановимые отказы — состояние не меняется
	ErrVetoNotRunning = errors.New("veto is not running for this match")
	ErrVetoWrongTurn  = errors.New("it is not this team's turn to act")
	ErrMapUnavailable = errors.New("map is not available in this match")

	// Авторизация
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")

	// Загрузка логотипов
	ErrUploaderNotConfigured = errors.New("file storage is not configured")
	ErrUnsupportedLogoFormat = errors.New("unsupported logo content type")
)
