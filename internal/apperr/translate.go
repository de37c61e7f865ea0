package apperr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
)

// GenericMessage is what clients see for unclassified failures.
const GenericMessage = "Something went very wrong!"

// MySQL server error numbers the translator understands.
const (
	mysqlDuplicateEntry   = 1062
	mysqlNoReferencedRow  = 1452
	mysqlDataTooLong      = 1406
	mysqlIncorrectValue   = 1366
	mysqlTruncatedWrong   = 1292
	mysqlBadNullError     = 1048
	mysqlCheckConstraint  = 3819
	mysqlDataOutOfRange   = 1264
)

var quotedValue = regexp.MustCompile(`'([^']*)'`)

// CastError reports a path parameter that could not be converted.
type CastError struct {
	Path  string
	Value string
}

func (e *CastError) Error() string { return fmt.Sprintf("invalid %s: %s", e.Path, e.Value) }

// Translate classifies any error returned by a handler or service.  The
// second result is false when the error was not recognised; the caller
// should log it because the client only gets GenericMessage.
func Translate(err error) (*Error, bool) {
	if err == nil {
		return nil, true
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Kind == Internal {
			return &Error{Kind: Internal, Message: GenericMessage, Err: appErr}, false
		}
		return appErr, true
	}

	var castErr *CastError
	if errors.As(err, &castErr) {
		return &Error{Kind: Validation, Message: fmt.Sprintf("Invalid %s: %s.", castErr.Path, castErr.Value), Err: err}, true
	}

	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return &Error{Kind: Validation, Message: fmt.Sprintf("Invalid value: %s.", numErr.Num), Err: err}, true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return &Error{Kind: Validation, Message: validationMessage(verrs), Err: err}, true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return translateMySQL(myErr)
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return &Error{Kind: Unauthenticated, Message: "Your token has expired! Please log in again", Err: err}, true
	}
	if isTokenError(err) {
		return &Error{Kind: Unauthenticated, Message: "Invalid token. Please log in again!", Err: err}, true
	}

	return &Error{Kind: Internal, Message: GenericMessage, Err: err}, false
}

func translateMySQL(e *mysql.MySQLError) (*Error, bool) {
	switch e.Number {
	case mysqlDuplicateEntry:
		value := ""
		if m := quotedValue.FindStringSubmatch(e.Message); len(m) == 2 {
			value = m[1]
		}
		return &Error{Kind: Validation, Message: fmt.Sprintf("Duplicate field value: %q. Please use another value!", value), Err: e}, true
	case mysqlNoReferencedRow:
		return &Error{Kind: Validation, Message: "Invalid reference to a related record.", Err: e}, true
	case mysqlDataTooLong, mysqlIncorrectValue, mysqlTruncatedWrong, mysqlBadNullError, mysqlCheckConstraint, mysqlDataOutOfRange:
		return &Error{Kind: Validation, Message: "Invalid input data. " + e.Message, Err: e}, true
	}
	return &Error{Kind: Internal, Message: GenericMessage, Err: e}, false
}

func validationMessage(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return "Invalid input data. " + strings.Join(msgs, ". ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Please provide a valid email"
	case "min":
		return fmt.Sprintf("%s must have at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s characters", field, fe.Param())
	case "eqfield":
		return "Passwords are not the same!"
	case "gt", "gte":
		return fmt.Sprintf("%s must be greater than %s", field, strings.TrimPrefix(fe.Param(), "="))
	}
	return fmt.Sprintf("%s is invalid", field)
}

func isTokenError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrSignatureInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
