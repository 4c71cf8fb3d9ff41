package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed     = errors.New("validation failed")
	ErrSameLineup           = errors.New("a lineup cannot race itself")
	ErrLineupMismatch       = errors.New("lineups belong to different gauntlets")
	ErrNegativeSets         = errors.New("set counts must not be negative")
	ErrScoreExceedsSets     = errors.New("set wins exceed the number of sets contested")
	ErrMatchDateInFuture    = errors.New("match date must not be in the future")
	ErrGauntletClosed       = errors.New("gauntlet is closed")
	ErrGauntletNameRequired = errors.New("gauntlet name is required")
	ErrBoatClassRequired    = errors.New("boat class is required")
	ErrTargetOutOfRange     = errors.New("target position is outside the ladder")

	// Ошибки конфликтов
	ErrDuplicateMatch      = errors.New("identical match already recorded")
	ErrConcurrencyConflict = errors.New("concurrent update for the same gauntlet lost, retry")

	// Ошибки, специфичные для сущностей (могут дублировать ErrNotFound, но дают больше контекста)
	ErrGauntletNotFound = errors.New("gauntlet not found")
	ErrLineupNotFound   = errors.New("lineup not found")
	ErrMatchNotFound    = errors.New("match not found")
	ErrPositionNotFound = errors.New("ladder position not found")

	// Внутренняя ошибка: нарушение инварианта лестницы. Фатальна, транзакция
	// откатывается, в persistent state не попадает.
	ErrInvariantViolation = errors.New("ladder invariant violated")
)
