package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
)

// statusCodes maps domain errors to their HTTP status.
var statusCodes = map[error]int{
	member.ErrNotFound:             http.StatusNotFound,
	income.ErrUnknownJob:           http.StatusNotFound,
	income.ErrRunNotFound:          http.StatusNotFound,
	investment.ErrNotFound:         http.StatusNotFound,
	ledger.ErrWithdrawalNotFound:   http.StatusNotFound,
	income.ErrJobLocked:            http.StatusConflict,
	income.ErrAlreadyCompleted:     http.StatusConflict,
	ledger.ErrWithdrawalHandled:    http.StatusConflict,
	ledger.ErrInsufficientFunds:    http.StatusBadRequest,
	ledger.ErrMemberInactive:       http.StatusBadRequest,
	investment.ErrMemberInactive:   http.StatusBadRequest,
	investment.ErrPlanInactive:     http.StatusBadRequest,
	member.ErrPlacementFull:        http.StatusBadRequest,
	member.ErrPlacementOutsideTeam: http.StatusBadRequest,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if c, ok := statusCodes[cause]; ok {
			code = c
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				code = http.StatusBadRequest
				message = core.TranslateErrors(origErr, translator)
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var person core.Person
				if id := ctx.Param("id"); id != "" {
					person.ID = id
				}
				logger.Error(msg, errors.Wrap(err, msg), person)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
