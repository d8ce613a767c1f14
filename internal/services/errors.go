package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/database"
)

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindForbidden
	KindConflict
	KindValidation
	KindTransaction
)

// Error is a failure with a stable reason code. errors.Is compares codes, so
// an enriched copy (with IDs or field details) still matches its sentinel.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	IDs     []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrRoomNotFound     = newError(KindNotFound, "ROOM_NOT_FOUND", "room not found")
	ErrUserNotFound     = newError(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrTaskNotFound     = newError(KindNotFound, "TASK_NOT_FOUND", "task not found")
	ErrCommentNotFound  = newError(KindNotFound, "COMMENT_NOT_FOUND", "comment not found")
	ErrInvalidMembers   = newError(KindNotFound, "INVALID_MEMBERS", "some members do not exist")
	ErrInvalidAssignees = newError(KindNotFound, "INVALID_ASSIGNEES", "some assignees do not exist")

	ErrNotAdmin      = newError(KindForbidden, "NOT_ADMIN", "only the room admin can do this")
	ErrNotRoomMember = newError(KindForbidden, "NOT_ROOM_MEMBER", "you are not a member of this room")
	ErrForbidden     = newError(KindForbidden, "FORBIDDEN", "you do not have access to this resource")

	ErrAlreadyMember     = newError(KindConflict, "ALREADY_MEMBER", "user is already a member of this room")
	ErrRoomLimitReached  = newError(KindConflict, "ROOM_LIMIT_REACHED", "room member limit reached")
	ErrNotMember         = newError(KindConflict, "NOT_MEMBER", "user is not a member of this room")
	ErrCannotRemoveSelf  = newError(KindConflict, "CANNOT_REMOVE_SELF", "the admin must transfer ownership before leaving")
	ErrCannotRemoveAdmin = newError(KindConflict, "CANNOT_REMOVE_ADMIN", "the room admin cannot be removed")
	ErrNewAdminNotMember = newError(KindConflict, "NEW_ADMIN_NOT_MEMBER", "the new admin must be a member of the room")
	ErrAlreadyAdmin      = newError(KindConflict, "ALREADY_ADMIN", "user is already the room admin")
	ErrNoValidFields     = newError(KindConflict, "NO_VALID_FIELDS", "no valid fields to update")
	ErrAssigneeNotMember = newError(KindConflict, "ASSIGNEE_NOT_MEMBER", "assignees must be members of the task's room")

	ErrValidation = newError(KindValidation, "VALIDATION_FAILED", "validation failed")
	ErrEmailTaken = newError(KindValidation, "EMAIL_TAKEN", "email or username is already registered")

	ErrTransactionAborted = newError(KindTransaction, "TRANSACTION_ABORTED", "the operation could not be completed, retry it")
)

func withIDs(base *Error, ids []uuid.UUID) error {
	e := *base
	e.IDs = make([]string, len(ids))
	for i, id := range ids {
		e.IDs[i] = id.String()
	}
	return &e
}

func validationError(fields map[string]string) error {
	e := *ErrValidation
	e.Fields = fields
	return &e
}

func fieldError(field, message string) error {
	return validationError(map[string]string{field: message})
}

// notFound turns a missing-row error into the given domain error.
func notFound(err error, domainErr *Error) error {
	if database.IsNotFound(err) {
		return domainErr
	}
	return err
}

// runInTx runs fn as one unit of work. Domain errors pass through unchanged;
// anything else means the transaction aborted for infrastructure reasons.
func runInTx(ctx context.Context, db *database.Database, fn func(tx *database.Database) error) error {
	err := db.Transaction(ctx, fn)
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	e := *ErrTransactionAborted
	e.Err = err
	return &e
}

// KindOf returns the kind of a service error, or 0 for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
