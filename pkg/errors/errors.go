package errors

import (
	"errors"
	"fmt"
)

// Kind enumerates every failure the service reports to callers. The set is
// closed: httputil.Translate switches over all of them and Kinds returns the
// full list so tests can prove no kind falls through to the default branch.
type Kind int

const (
	KindUnclassified Kind = iota
	KindTokenDecode
	KindTokenExpired
	KindAccountLocked
	KindBadCredentials
	KindAccountDisabled
	KindNotAuthenticated
	KindAccessDenied
	KindDuplicateUsername
	KindDuplicateEmail
	KindEmailNotVerified
	KindAccountNotFound
	KindMethodNotAllowed
	KindNoRoute
	KindInvalidInput
	KindRateLimited

	kindCount
)

var kindNames = [kindCount]string{
	KindUnclassified:      "UNCLASSIFIED",
	KindTokenDecode:       "TOKEN_DECODE",
	KindTokenExpired:      "TOKEN_EXPIRED",
	KindAccountLocked:     "ACCOUNT_LOCKED",
	KindBadCredentials:    "BAD_CREDENTIALS",
	KindAccountDisabled:   "ACCOUNT_DISABLED",
	KindNotAuthenticated:  "NOT_AUTHENTICATED",
	KindAccessDenied:      "ACCESS_DENIED",
	KindDuplicateUsername: "DUPLICATE_USERNAME",
	KindDuplicateEmail:    "DUPLICATE_EMAIL",
	KindEmailNotVerified:  "EMAIL_NOT_VERIFIED",
	KindAccountNotFound:   "ACCOUNT_NOT_FOUND",
	KindMethodNotAllowed:  "METHOD_NOT_ALLOWED",
	KindNoRoute:           "NO_ROUTE",
	KindInvalidInput:      "INVALID_INPUT",
	KindRateLimited:       "RATE_LIMITED",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every defined kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := KindUnclassified; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Caller-facing messages. TokenDecode and Unclassified are fixed so library
// and driver error text never reaches a response body.
const (
	MsgTokenDecode      = "Token Decode Error"
	MsgTokenExpired     = "Token has Expired"
	MsgAccountLocked    = "Your account has been locked. Please contact administration"
	MsgBadCredentials   = "Username or Password is Incorrect. Please try again"
	MsgAccountDisabled  = "Your account has been disabled. If this is an error, please contact administration"
	MsgNotAuthenticated = "You need to log in to access this URL"
	MsgAccessDenied     = "You do not have enough permission"
	MsgMethodNotAllowed = "This request method is not allowed on this endpoint. Please send a '%s' request"
	MsgUnclassified     = "An error occurred while processing the request"
	MsgNoRoute          = "There is no mapping for this URL"
	MsgRateLimited      = "Too many requests. Please try again later"
)

// Error is the single error type carried from the auth and account layers to
// the failure translator.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of the first *Error in err's chain, or
// KindUnclassified when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnclassified
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// TokenDecode reports a malformed or unverifiable token. cause is kept for
// logs only.
func TokenDecode(cause error) *Error {
	return &Error{Kind: KindTokenDecode, Message: MsgTokenDecode, Err: cause}
}

// TokenExpired reports a well-formed token whose expiry has passed.
func TokenExpired(cause error) *Error {
	return &Error{Kind: KindTokenExpired, Message: MsgTokenExpired, Err: cause}
}

func AccountLocked() *Error {
	return &Error{Kind: KindAccountLocked, Message: MsgAccountLocked}
}

func BadCredentials() *Error {
	return &Error{Kind: KindBadCredentials, Message: MsgBadCredentials}
}

func AccountDisabled() *Error {
	return &Error{Kind: KindAccountDisabled, Message: MsgAccountDisabled}
}

func NotAuthenticated() *Error {
	return &Error{Kind: KindNotAuthenticated, Message: MsgNotAuthenticated}
}

func AccessDenied() *Error {
	return &Error{Kind: KindAccessDenied, Message: MsgAccessDenied}
}

func DuplicateUsername(username string) *Error {
	return &Error{Kind: KindDuplicateUsername, Message: fmt.Sprintf("Username already exists, %s", username)}
}

func DuplicateEmail(email string) *Error {
	return &Error{Kind: KindDuplicateEmail, Message: fmt.Sprintf("Email already exists, %s", email)}
}

func EmailNotVerified(email string) *Error {
	return &Error{Kind: KindEmailNotVerified, Message: fmt.Sprintf("Email requires verification, %s", email)}
}

// AccountNotFound reports a lookup miss for the given username or id.
func AccountNotFound(key string) *Error {
	return &Error{Kind: KindAccountNotFound, Message: fmt.Sprintf("Username doesn't exist, %s", key)}
}

// MethodNotAllowed names the first method the route does accept.
func MethodNotAllowed(allowed string) *Error {
	return &Error{Kind: KindMethodNotAllowed, Message: fmt.Sprintf(MsgMethodNotAllowed, allowed)}
}

func NoRoute() *Error {
	return &Error{Kind: KindNoRoute, Message: MsgNoRoute}
}

// InvalidInput creates a 400 error for a malformed request body or parameter.
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: MsgRateLimited}
}

// Unclassified wraps an operational fault. The message is always the generic
// one; the cause is only ever logged.
func Unclassified(cause error) *Error {
	return &Error{Kind: KindUnclassified, Message: MsgUnclassified, Err: cause}
}
