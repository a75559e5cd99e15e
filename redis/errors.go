package redis

import (
	"strings"

	"github.com/joomcode/errorx"
)

// Errors is the root namespace for all errors produced by this module.
var Errors = errorx.NewNamespace("redmux")

var (
	// ErrTraitConnectivity marks errors caused by the state of the
	// connection itself: dial failures, IO errors, explicit shutdown.
	ErrTraitConnectivity = errorx.RegisterTrait("connectivity")
	// ErrTraitNotSent marks errors raised before the request reached the
	// socket: the command was definitely not executed and may be retried.
	ErrTraitNotSent = errorx.RegisterTrait("request_not_sent")
	// ErrTraitResult marks ordinary error replies sent by the server. They
	// say nothing about the health of the connection.
	ErrTraitResult = errorx.RegisterTrait("server_result")
)

var (
	// ErrOpts - invalid client options.
	ErrOpts = Errors.NewSubNamespace("opts", ErrTraitNotSent)
	// ErrContextIsNil - context is not passed to the constructor.
	ErrContextIsNil = ErrOpts.NewType("context_is_nil")
	// ErrNoAddressProvided - no address given.
	ErrNoAddressProvided = ErrOpts.NewType("no_address")

	// ErrContextClosed - connection shut down explicitly or through its context.
	ErrContextClosed = Errors.NewType("connection_context_closed", ErrTraitConnectivity, ErrTraitNotSent)

	// ErrConnection - request could not be sent because the connection is down.
	ErrConnection = Errors.NewSubNamespace("connection", ErrTraitConnectivity, ErrTraitNotSent)
	// ErrNotConnected - connection is not established at the moment.
	ErrNotConnected = ErrConnection.NewType("not_connected")
	// ErrDial - could not connect.
	ErrDial = ErrConnection.NewType("could_not_connect")
	// ErrAuth - password didn't match.
	ErrAuth = ErrConnection.NewType("could_not_auth")
	// ErrConnSetup - other connection initialization failure (HELLO, PING, SELECT).
	ErrConnSetup = ErrConnection.NewType("connection_setup")

	// ErrIO - read/write error or timeout. It is not known whether the
	// request was processed by the server.
	ErrIO = Errors.NewType("io_error", ErrTraitConnectivity)

	// ErrRequest - request is malformed. No reason to retry as is.
	ErrRequest = Errors.NewSubNamespace("request", ErrTraitNotSent)
	// ErrArgumentType - argument is not serializable.
	ErrArgumentType = ErrRequest.NewType("argument_type")
	// ErrBatchFormat - some other request in the batch is malformed.
	ErrBatchFormat = ErrRequest.NewType("batch_format")
	// ErrCommandForbidden - command would poison a multiplexed connection.
	ErrCommandForbidden = ErrRequest.NewType("command_forbidden")
	// ErrRequestCancelled - request cancelled through its context.
	ErrRequestCancelled = ErrRequest.NewType("request_cancelled")

	// ErrResponse - the reply stream is broken. The connection is closed:
	// once framing is lost there is no way to find the next reply boundary.
	ErrResponse = Errors.NewSubNamespace("response", ErrTraitConnectivity)
	// ErrResponseFormat - reply is not valid RESP.
	ErrResponseFormat = ErrResponse.NewType("format")
	// ErrHeaderlineTooLarge - reply header line is too large.
	ErrHeaderlineTooLarge = ErrResponse.NewType("headerline_too_large")
	// ErrHeaderlineEmpty - reply header line is empty.
	ErrHeaderlineEmpty = ErrResponse.NewType("headerline_empty")
	// ErrIntegerParsing - integer malformed.
	ErrIntegerParsing = ErrResponse.NewType("integer_parsing")
	// ErrNoFinalRN - no final "\r\n" after a counted payload.
	ErrNoFinalRN = ErrResponse.NewType("no_final_rn")
	// ErrUnknownHeaderType - unknown reply type tag.
	ErrUnknownHeaderType = ErrResponse.NewType("unknown_header_type")
	// ErrDesync - a correlated reply arrived with no pending request.
	ErrDesync = ErrResponse.NewType("desync")
	// ErrPing - ping receives a wrong response.
	ErrPing = ErrResponse.NewType("ping")

	// ErrResult - ordinary error replies from the server.
	ErrResult = Errors.NewSubNamespace("result", ErrTraitResult)
	// ErrResultError - any error reply without a more specific type.
	ErrResultError = ErrResult.NewType("error")
	// ErrLoading - the server is loading its dataset.
	ErrLoading = ErrResult.NewType("loading")
	// ErrExecAborted - EXEC returned nil: a watched key changed.
	ErrExecAborted = ErrResult.NewType("exec_aborted")

	// ErrConvert - a reply was delivered but does not fit the requested shape.
	ErrConvert = Errors.NewSubNamespace("convert", ErrTraitResult)
	// ErrConversion - reply value cannot be converted.
	ErrConversion = ErrConvert.NewType("conversion")
	// ErrResponseUnexpected - reply is valid RESP but its structure is not
	// what the operation expects.
	ErrResponseUnexpected = ErrConvert.NewType("response_unexpected")
)

var (
	// EKLine - the raw header line that failed to parse.
	EKLine = errorx.RegisterPrintableProperty("line")
	// EKResponse - the reply value that triggered the error.
	EKResponse = errorx.RegisterProperty("response")
	// EKRequest - the request the error belongs to.
	EKRequest = errorx.RegisterPrintableProperty("request")
	// EKRequests - the batch of requests the error belongs to.
	EKRequests = errorx.RegisterProperty("requests")
	// EKErrorCode - the leading word of a server error reply (ERR, MOVED, LOADING...).
	EKErrorCode = errorx.RegisterPrintableProperty("error_code")
	// EKAddress - address of the server.
	EKAddress = errorx.RegisterPrintableProperty("address")
)

// AsError casts a reply value to an error, or nil if it isn't one.
func AsError(v interface{}) error {
	e, _ := v.(error)
	return e
}

// AsErrorx casts a reply value to *errorx.Error, or nil. All errors
// produced by this module are errorx errors.
func AsErrorx(v interface{}) *errorx.Error {
	e, ok := v.(error)
	if !ok {
		return nil
	}
	return errorx.Cast(e)
}

// HardError reports whether e poisons the connection. Ordinary server
// replies of the error kind are not hard: the reply stream stays in sync.
func HardError(e *errorx.Error) bool {
	return e != nil && !e.HasTrait(ErrTraitResult)
}

// ServerError wraps a server error reply. The leading word is kept as the
// EKErrorCode property; LOADING gets its own type since callers commonly
// want to retry it.
func ServerError(text string) *errorx.Error {
	code := text
	if i := strings.IndexByte(text, ' '); i != -1 {
		code = text[:i]
	}
	typ := ErrResultError
	if code == "LOADING" {
		typ = ErrLoading
	}
	return typ.New("%s", text).WithProperty(EKErrorCode, code)
}
