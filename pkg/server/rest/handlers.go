package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/hherb/OpenHiker-sub005/domain"
	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/guidance"
	"github.com/hherb/OpenHiker-sub005/service"
	"github.com/hherb/OpenHiker-sub005/util"
)

type NavigationService interface {
	Route(ctx context.Context, from, to datastructure.Coordinate, via []datastructure.Coordinate,
		modeName string, loop bool) (*service.RouteResult, error)
	Metadata(ctx context.Context) (datastructure.RegionMetadata, error)
}

type NavigationHandler struct {
	svc          NavigationService
	promeMetrics *metrics
}

func NavigatorRouter(r *chi.Mux, svc NavigationService, m *metrics) {
	handler := &NavigationHandler{svc, m}

	r.Group(func(r chi.Router) {
		r.Route("/api/navigations", func(r chi.Router) {
			r.Post("/route", handler.route)
			r.Get("/metadata", handler.metadata)
		})
	})
}

// Coord model info
type Coord struct {
	Lat float64 `json:"lat" validate:"required,lt=90,gt=-90"`
	Lon float64 `json:"lon" validate:"required,lt=180,gt=-180"`
}

// RouteRequest is the request body for a route query: start, destination,
// ordered via points, routing mode and the loop flag.
type RouteRequest struct {
	From Coord   `json:"from" validate:"required"`
	To   Coord   `json:"to" validate:"required"`
	Via  []Coord `json:"via" validate:"omitempty,dive"`
	Mode string  `json:"mode" validate:"required,oneof=hiking cycling"`
	Loop bool    `json:"loop"`
}

func (s *RouteRequest) Bind(r *http.Request) error {
	if s.From.Lat == 0 || s.From.Lon == 0 || s.To.Lat == 0 || s.To.Lon == 0 {
		return errors.New("invalid request")
	}
	return nil
}

// InstructionRes model info
type InstructionRes struct {
	Description string                   `json:"description"`
	Sign        int                      `json:"sign"`
	Name        string                   `json:"name,omitempty"`
	Point       datastructure.Coordinate `json:"point"`
	Distance    float64                  `json:"distance"`
	Time        float64                  `json:"time"`
}

// RouteResponse is the response body for a route query.
type RouteResponse struct {
	Path             string                     `json:"path"`
	Dist             float64                    `json:"distance"`
	Duration         float64                    `json:"duration"`
	Gain             float64                    `json:"gain"`
	Loss             float64                    `json:"loss"`
	Route            []datastructure.Coordinate `json:"route"`
	Navigations      []InstructionRes           `json:"navigations"`
	ElevationProfile []guidance.ProfileSample   `json:"elevation_profile,omitempty"`
}

func NewRouteResponse(result *service.RouteResult) *RouteResponse {
	navs := make([]InstructionRes, 0, len(result.Instructions))
	for i := range result.Instructions {
		instr := &result.Instructions[i]
		navs = append(navs, InstructionRes{
			Description: instr.GetTurnDescription(),
			Sign:        instr.Sign,
			Name:        instr.Name,
			Point:       instr.Point,
			Distance:    util.RoundFloat(instr.Distance, 2),
			Time:        util.RoundFloat(instr.Time, 2),
		})
	}

	return &RouteResponse{
		Path:             datastructure.RenderPath(result.Path.Polyline),
		Dist:             util.RoundFloat(result.Path.Distance, 2),
		Duration:         util.RoundFloat(result.Path.Duration, 2),
		Gain:             util.RoundFloat(result.Path.Gain, 2),
		Loss:             util.RoundFloat(result.Path.Loss, 2),
		Route:            result.Path.Polyline,
		Navigations:      navs,
		ElevationProfile: result.Profile,
	}
}

func (h *NavigationHandler) route(w http.ResponseWriter, r *http.Request) {
	data := &RouteRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	validate := validator.New()
	if err := validate.Struct(*data); err != nil {
		english := en.New()
		uni := ut.New(english, english)
		trans, _ := uni.GetTranslator("en")
		_ = enTranslations.RegisterDefaultTranslations(validate, trans)
		vv := translateError(err, trans)
		render.Render(w, r, ErrValidation(err, vv))
		return
	}

	via := make([]datastructure.Coordinate, 0, len(data.Via))
	for _, v := range data.Via {
		via = append(via, datastructure.NewCoordinate(v.Lat, v.Lon))
	}

	h.promeMetrics.RouteQueryCount.WithLabelValues(data.Mode).Inc()
	result, err := h.svc.Route(r.Context(),
		datastructure.NewCoordinate(data.From.Lat, data.From.Lon),
		datastructure.NewCoordinate(data.To.Lat, data.To.Lon),
		via, data.Mode, data.Loop)
	if err != nil {
		render.Render(w, r, ErrChi(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, NewRouteResponse(result))
}

// MetadataResponse model info
type MetadataResponse struct {
	RegionID  string `json:"region_id"`
	Profile   string `json:"profile"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
	BuildDate string `json:"build_date"`
}

func (h *NavigationHandler) metadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.Metadata(r.Context())
	if err != nil {
		render.Render(w, r, ErrChi(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, &MetadataResponse{
		RegionID:  meta.RegionID,
		Profile:   meta.Profile,
		NodeCount: meta.NodeCount,
		EdgeCount: meta.EdgeCount,
		BuildDate: meta.BuildDate,
	})
}

// ErrResponse model info
type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	StatusText    string   `json:"status"`          // user-level status message
	AppCode       int64    `json:"code,omitempty"`  // application-specific error code
	ErrorText     string   `json:"error,omitempty"` // application-level error message, for debugging
	ErrValidation []string `json:"validation,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInternalServerErrorRend(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: 500,
		StatusText:     "Internal server error.",
		ErrorText:      err.Error(),
	}
}

func ErrValidation(err error, errV []error) render.Renderer {
	vv := []string{}
	for _, v := range errV {
		vv = append(vv, v.Error())
	}
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: 400,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
		ErrValidation:  vv,
	}
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: 400,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

func ErrChi(err error) render.Renderer {
	statusText := ""
	switch getStatusCode(err) {
	case http.StatusNotFound:
		statusText = "Resource not found."
	case http.StatusServiceUnavailable:
		statusText = "No region graph loaded."
	case http.StatusInternalServerError:
		statusText = "Internal server error."
	case http.StatusBadRequest:
		statusText = "Bad request."
	default:
		statusText = "Error."
	}

	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: getStatusCode(err),
		StatusText:     statusText,
		ErrorText:      err.Error(),
	}
}

func getStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ierr *domain.Error
	if !errors.As(err, &ierr) {
		return http.StatusInternalServerError
	}
	switch ierr.Code() {
	case domain.ErrBadParamInput:
		return http.StatusBadRequest
	case domain.ErrPointNotOnTrail, domain.ErrNoPathFound, domain.ErrViaPointUnreachable:
		return http.StatusNotFound
	case domain.ErrNoGraphLoaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func translateError(err error, trans ut.Translator) (errs []error) {
	if err == nil {
		return nil
	}
	validatorErrs := err.(validator.ValidationErrors)
	for _, e := range validatorErrs {
		translatedErr := fmt.Errorf(e.Translate(trans))
		errs = append(errs, translatedErr)
	}
	return errs
}
