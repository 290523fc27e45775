package services

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how callers should react.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindForbidden          Kind = "Forbidden"
	KindConflict           Kind = "Conflict"
	KindValidation         Kind = "ValidationError"
	KindPreconditionFailed Kind = "PreconditionFailed"
)

// Code is the machine-readable identifier of a business-rule violation.
type Code string

const (
	CodeNotFound             Code = "NotFound"
	CodeGroupNotFound        Code = "GroupNotFound"
	CodeProfileNotFound      Code = "ProfileNotFound"
	CodeForbidden            Code = "Forbidden"
	CodeAlreadyMember        Code = "AlreadyMember"
	CodeDuplicateEmail       Code = "DuplicateEmail"
	CodeTokenCollision       Code = "TokenCollision"
	CodeValidation           Code = "ValidationError"
	CodeProfileIncomplete    Code = "ProfileIncomplete"
	CodeGroupClosed          Code = "GroupClosed"
	CodeOwnerCannotLeave     Code = "OwnerCannotLeave"
	CodePasswordRequired     Code = "PasswordRequired"
	CodeInvalidPassword      Code = "InvalidPassword"
	CodeNotPasswordProtected Code = "NotPasswordProtected"
	CodeAccountRequired      Code = "AccountRequired"
)

// Error is a typed business-rule violation. Two errors match with errors.Is when
// their codes are equal, so wrapped details keep comparing against the sentinels.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

var (
	ErrNotFound             = newError(CodeNotFound, KindNotFound, "not found")
	ErrGroupNotFound        = newError(CodeGroupNotFound, KindNotFound, "group not found")
	ErrProfileNotFound      = newError(CodeProfileNotFound, KindNotFound, "profile not found")
	ErrForbidden            = newError(CodeForbidden, KindForbidden, "forbidden")
	ErrAlreadyMember        = newError(CodeAlreadyMember, KindConflict, "already a member of this group")
	ErrDuplicateEmail       = newError(CodeDuplicateEmail, KindConflict, "email already registered in this group")
	ErrTokenCollision       = newError(CodeTokenCollision, KindConflict, "could not allocate a unique share token")
	ErrValidation           = newError(CodeValidation, KindValidation, "invalid input")
	ErrProfileIncomplete    = newError(CodeProfileIncomplete, KindPreconditionFailed, "profile is incomplete")
	ErrGroupClosed          = newError(CodeGroupClosed, KindPreconditionFailed, "group is closed")
	ErrOwnerCannotLeave     = newError(CodeOwnerCannotLeave, KindPreconditionFailed, "the owner cannot leave the group; transfer ownership first")
	ErrPasswordRequired     = newError(CodePasswordRequired, KindPreconditionFailed, "password is required")
	ErrInvalidPassword      = newError(CodeInvalidPassword, KindPreconditionFailed, "invalid password")
	ErrNotPasswordProtected = newError(CodeNotPasswordProtected, KindPreconditionFailed, "group is not password protected")
	ErrAccountRequired      = newError(CodeAccountRequired, KindPreconditionFailed, "password protected groups require an account")
)

// validationError reports a missing or malformed field.
func validationError(field, msg string) error {
	return &Error{Code: CodeValidation, Kind: KindValidation, Message: msg, Field: field}
}

// KindOf returns the kind of a business error, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of a business error, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
