package rules

import "errors"

var (
	ErrUnknownOperator      = errors.New("unknown condition operator")
	ErrUnknownRecipientType = errors.New("unknown recipient type")
	ErrInvalidRecipient     = errors.New("invalid recipient")
	ErrTooManyRecipients    = errors.New("rule resolves too many recipients")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrTemplateInactive     = errors.New("template is inactive")
	ErrRulePanicked         = errors.New("rule evaluation panicked")
)
