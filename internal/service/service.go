// Package service exposes the sensors of one instance over connect and plain
// HTTP.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"schulmanager-online/internal/components/assert"
	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/internal/coordinator"
	"schulmanager-online/internal/export"
	"schulmanager-online/internal/sensor"
	"schulmanager-online/internal/snapshot"
	"schulmanager-online/lib/util/serviceutil"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "schulmanager.v1.SensorService"

	ListSensorsProcedure = "/" + ServiceName + "/ListSensors"
	GetSnapshotProcedure = "/" + ServiceName + "/GetSnapshot"
	RefreshProcedure     = "/" + ServiceName + "/Refresh"
)

const (
	report_service_encode   = "service.encode"
	report_service_refresh  = "service.refresh"
	report_service_calendar = "service.calendar"
)

var ErrNoSnapshot = errors.New("no snapshot has been published yet")

// Instance is a running coordinator as seen by the service.
type Instance interface {
	sensor.Source
	Store() *snapshot.Store
	Status() coordinator.Status
	Refresh(ctx context.Context) error
}

type Service struct {
	instance     Instance
	clock        chrono.TimeAPI
	tel          telemetry.API
	accessToken  string
	interceptors []connect.Interceptor
}

type serviceConfig struct {
	tel          telemetry.API
	accessToken  string
	interceptors []connect.Interceptor
}

type ServiceOption func(cfg *serviceConfig)

func WithTelemetry(tel telemetry.API) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.tel = tel
	}
}

// WithAccessToken requires a bearer token on every route except /healthz.
func WithAccessToken(token string) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.accessToken = token
	}
}

// WithInterceptors adds connect interceptors (e.g. otelconnect) in front of
// the procedures.
func WithInterceptors(interceptors ...connect.Interceptor) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.interceptors = append(cfg.interceptors, interceptors...)
	}
}

func NewService(instance Instance, clock chrono.TimeAPI, options ...ServiceOption) Service {
	assert.NotNil(instance, "instance")
	assert.NotNil(clock, "clock")

	cfg := serviceConfig{tel: telemetry.SlogAPI{}}
	for _, opt := range options {
		opt(&cfg)
	}

	return Service{
		instance:     instance,
		clock:        clock,
		tel:          telemetry.NewScopedAPI("service", cfg.tel),
		accessToken:  cfg.accessToken,
		interceptors: cfg.interceptors,
	}
}

// Handler routes the connect procedures and the plain HTTP endpoints.
func (s Service) Handler() http.Handler {
	interceptors := append(
		[]connect.Interceptor{serviceutil.VerifyAccessTokenInterceptor(s.accessToken)},
		s.interceptors...,
	)
	opts := connect.WithInterceptors(interceptors...)

	mux := http.NewServeMux()
	mux.Handle(ListSensorsProcedure, connect.NewUnaryHandler(ListSensorsProcedure, s.ListSensors, opts))
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, s.GetSnapshot, opts))
	mux.Handle(RefreshProcedure, connect.NewUnaryHandler(RefreshProcedure, s.Refresh, opts))

	mux.Handle("GET /api/states", serviceutil.VerifyAccessTokenHandler(s.accessToken, http.HandlerFunc(s.states)))
	mux.Handle("GET /calendar.ics", serviceutil.VerifyAccessTokenHandler(s.accessToken, http.HandlerFunc(s.calendar)))
	mux.HandleFunc("GET /healthz", s.healthz)
	return mux
}

// ListSensors implements schulmanager.v1.SensorService/ListSensors.
func (s Service) ListSensors(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sensors := sensor.All(s.instance, s.clock)
	msg, err := toStruct(map[string]any{"sensors": sensors})
	if err != nil {
		s.tel.ReportBroken(report_service_encode, err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// GetSnapshot implements schulmanager.v1.SensorService/GetSnapshot, it fails
// with NotFound before the first refresh succeeded.
func (s Service) GetSnapshot(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	snap := s.instance.Store().Latest()
	if snap == nil {
		return nil, connect.NewError(connect.CodeNotFound, ErrNoSnapshot)
	}
	msg, err := toStruct(snap)
	if err != nil {
		s.tel.ReportBroken(report_service_encode, err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Refresh implements schulmanager.v1.SensorService/Refresh. A failed refresh
// is reported in the response rather than as an rpc error.
func (s Service) Refresh(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	// the refresh outlives a caller that gives up waiting on it
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), coordinator.RefreshTimeout)
	defer cancel()

	result := map[string]any{"success": true, "error": ""}
	err := s.instance.Refresh(refreshCtx)
	if err != nil {
		s.tel.ReportWarning(report_service_refresh, err)
		result["success"] = false
		result["error"] = err.Error()
	}
	msg, err := structpb.NewStruct(result)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

type stateEntry struct {
	Name       string         `json:"name"`
	Icon       string         `json:"icon"`
	State      *int           `json:"state"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes"`
}

// states renders every sensor keyed by entity id.
func (s Service) states(w http.ResponseWriter, r *http.Request) {
	out := map[string]stateEntry{}
	for _, item := range sensor.All(s.instance, s.clock) {
		out[item.EntityID] = stateEntry{
			Name:       item.Name,
			Icon:       item.Icon,
			State:      item.State,
			Available:  item.Available,
			Attributes: item.Attributes,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s Service) calendar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, err := w.Write([]byte(export.Calendar(s.instance.Store().Latest(), s.clock)))
	if err != nil {
		s.tel.ReportWarning(report_service_calendar, err)
	}
}

func (s Service) healthz(w http.ResponseWriter, r *http.Request) {
	status := s.instance.Status()
	code := http.StatusOK
	if !status.LastUpdateSuccess {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

func (s Service) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.tel.ReportWarning(report_service_encode, err)
	}
}

// toStruct converts v through its JSON form so that json tags decide the
// field names.
func toStruct(v any) (*structpb.Struct, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	err = json.Unmarshal(encoded, &fields)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}
