package api

import (
	"github.com/labstack/echo/v4"

	"AeroTrend/pkg/arinc429"
	xhttp "AeroTrend/pkg/http"
	xlogger "AeroTrend/pkg/logger"
)

// ARINCHandler serves the stateless ARINC 429 codecs.
type ARINCHandler struct {
	logger *xlogger.Logger
}

func NewARINCHandler(logger *xlogger.Logger) *ARINCHandler {
	return &ARINCHandler{logger: logger}
}

func (h *ARINCHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/arinc")
	g.POST("/bcd/decode", h.DecodeBCD)
	g.POST("/bcd/encode", h.EncodeBCD)
	g.POST("/label/reverse", h.ReverseLabel)
}

func (h *ARINCHandler) DecodeBCD(c echo.Context) error {
	req := &DecodeBCDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var (
		field arinc429.BCD
		err   error
	)
	if req.Array != nil {
		bits := make([]uint8, len(req.Array))
		for i, b := range req.Array {
			bits[i] = uint8(b)
		}
		field, err = arinc429.FromSlice(bits)
	} else {
		field, err = arinc429.ParseBits(req.Bits)
	}
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableError("ERR_BCD_FIELD", "bits", err.Error()).WithError(err))
	}

	value := arinc429.DecodeBCD(field)
	if req.Strict {
		if value, err = arinc429.DecodeBCDStrict(field); err != nil {
			return xhttp.AppErrorResponse(c, xhttp.UnprocessableError("ERR_BCD_DIGIT", "bits", err.Error()).WithError(err))
		}
	}
	return xhttp.SuccessResponse(c, bcdResponse(field, value))
}

func (h *ARINCHandler) EncodeBCD(c echo.Context) error {
	req := &EncodeBCDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	field := arinc429.EncodeBCD(*req.Value)
	if req.Strict {
		var err error
		if field, err = arinc429.EncodeBCDStrict(*req.Value); err != nil {
			return xhttp.AppErrorResponse(c, xhttp.UnprocessableError("ERR_BCD_RANGE", "value", err.Error()).WithError(err))
		}
	}
	return xhttp.SuccessResponse(c, bcdResponse(field, arinc429.DecodeBCD(field)))
}

func (h *ARINCHandler) ReverseLabel(c echo.Context) error {
	req := &ReverseLabelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var label uint8
	if req.Wire != nil {
		label = arinc429.ReverseLabel(*req.Wire)
	} else {
		parsed, err := arinc429.ParseOctal(req.Octal)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.UnprocessableError("ERR_LABEL", "octal", err.Error()).WithError(err))
		}
		label = parsed
	}
	wire := arinc429.ReverseLabel(label)
	return xhttp.SuccessResponse(c, LabelResponse{
		Octal:     arinc429.FormatOctal(label),
		Label:     label,
		Wire:      wire,
		WireOctal: arinc429.FormatOctal(wire),
	})
}

func bcdResponse(field arinc429.BCD, value float64) BCDResponse {
	bits := make([]int, len(field))
	for i, b := range field {
		bits[i] = int(b)
	}
	return BCDResponse{
		Value:  value,
		Digits: field.Digits(),
		Bits:   arinc429.FormatBits(field),
		Array:  bits,
	}
}
