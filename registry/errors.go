package registry

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Domain is the error domain reported with registry errors.
const Domain = "tokenreg.xdao.co"

// Kind groups error codes by what went wrong.
type Kind int

const (
	KindInternal Kind = iota
	// KindAuthorization: the requester fails an authority check.
	KindAuthorization
	// KindState: record existence preconditions are violated.
	KindState
	// KindDependency: the mint collaborator cannot report a mint authority.
	KindDependency
	// KindValidation: the request itself is malformed.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindDependency:
		return "dependency"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidRegisterRights   Code = "InvalidRegisterRights"
	CodeInvalidEditRights       Code = "InvalidEditRights"
	CodeUnauthorized            Code = "Unauthorized"
	CodeAlreadyExists           Code = "AlreadyExists"
	CodeManagerNotInitialized   Code = "ManagerNotInitialized"
	CodeAlreadyRegistered       Code = "AlreadyRegistered"
	CodeNotRegistered           Code = "NotRegistered"
	CodeMintingAuthorityUnknown Code = "MintingAuthorityUnknown"
	CodeInvalidAuthority        Code = "InvalidAuthority"
	CodeMetadataTooLarge        Code = "MetadataTooLarge"
	CodeInvalidMetadata         Code = "InvalidMetadata"
	CodeInvalidInstruction      Code = "InvalidInstruction"
	CodeInternal                Code = "Internal"
)

// Kind returns the group c belongs to.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidRegisterRights, CodeInvalidEditRights, CodeUnauthorized:
		return KindAuthorization
	case CodeAlreadyExists, CodeManagerNotInitialized, CodeAlreadyRegistered, CodeNotRegistered:
		return KindState
	case CodeMintingAuthorityUnknown:
		return KindDependency
	case CodeInvalidAuthority, CodeMetadataTooLarge, CodeInvalidMetadata, CodeInvalidInstruction:
		return KindValidation
	default:
		return KindInternal
	}
}

// Number returns the numeric custom error code clients of the on-chain
// program know c by. Internal errors have no number and return 0.
func (c Code) Number() uint32 {
	switch c {
	case CodeInvalidRegisterRights:
		return 6000
	case CodeInvalidEditRights:
		return 6001
	case CodeUnauthorized:
		return 6002
	case CodeAlreadyExists:
		return 6003
	case CodeManagerNotInitialized:
		return 6004
	case CodeAlreadyRegistered:
		return 6005
	case CodeNotRegistered:
		return 6006
	case CodeMintingAuthorityUnknown:
		return 6007
	case CodeInvalidAuthority:
		return 6008
	case CodeMetadataTooLarge:
		return 6009
	case CodeInvalidMetadata:
		return 6010
	case CodeInvalidInstruction:
		return 6011
	default:
		return 0
	}
}

// GRPCCode maps c to the closest gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidRegisterRights, CodeInvalidEditRights, CodeUnauthorized:
		return codes.PermissionDenied
	case CodeAlreadyExists, CodeAlreadyRegistered:
		return codes.AlreadyExists
	case CodeNotRegistered:
		return codes.NotFound
	case CodeManagerNotInitialized, CodeMintingAuthorityUnknown:
		return codes.FailedPrecondition
	case CodeInvalidAuthority, CodeMetadataTooLarge, CodeInvalidMetadata, CodeInvalidInstruction:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// Error is a registry failure. Every Error aborts its operation with nothing
// written.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the error's group.
func (e *Error) Kind() Kind { return e.Code.Kind() }

// Sentinels for errors.Is.
var (
	ErrInvalidRegisterRights   = &Error{Code: CodeInvalidRegisterRights, Message: "requester may not register this token"}
	ErrInvalidEditRights       = &Error{Code: CodeInvalidEditRights, Message: "requester may not edit this token"}
	ErrUnauthorized            = &Error{Code: CodeUnauthorized, Message: "requester is not the manager authority"}
	ErrAlreadyExists           = &Error{Code: CodeAlreadyExists, Message: "manager already initialized"}
	ErrManagerNotInitialized   = &Error{Code: CodeManagerNotInitialized, Message: "manager not initialized"}
	ErrAlreadyRegistered       = &Error{Code: CodeAlreadyRegistered, Message: "token already registered"}
	ErrNotRegistered           = &Error{Code: CodeNotRegistered, Message: "token not registered"}
	ErrMintingAuthorityUnknown = &Error{Code: CodeMintingAuthorityUnknown, Message: "token reports no mint authority"}
	ErrInvalidAuthority        = &Error{Code: CodeInvalidAuthority, Message: "authority must not be zero"}
	ErrMetadataTooLarge        = &Error{Code: CodeMetadataTooLarge, Message: "token metadata exceeds record space"}
	ErrInvalidMetadata         = &Error{Code: CodeInvalidMetadata, Message: "token metadata must be valid UTF-8"}
	ErrInvalidInstruction      = &Error{Code: CodeInvalidInstruction, Message: "instruction is malformed or addressed elsewhere"}
)

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func internal(message string, cause error) *Error {
	return newError(CodeInternal, message, cause)
}

// CodeOf extracts the registry code from err, or CodeInternal when err is not
// a registry error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsKind reports whether err is a registry error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind() == k
}
