package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"access.service/internal/api/handler"
	"access.service/internal/core"
)

// NewRouter sets up the gorilla/mux router and defines all API routes.
func NewRouter(service *core.AccessService) *mux.Router {

	deviceHandler := handler.DeviceHandler{
		Service: service,
	}

	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/devices/{deviceId}/fingerprints/enroll", deviceHandler.EnrollFingerprint).Methods(http.MethodPost)
	api.HandleFunc("/devices/{deviceId}/fingerprints/{slotId:[0-9]+}", deviceHandler.DeleteFingerprint).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{deviceId}/fingerprints/{slotId:[0-9]+}/enroll-result", deviceHandler.EnrollResult).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceId}/fingerprints", deviceHandler.ListFingerprints).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceId}/logs", deviceHandler.DeviceLogs).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceId}/status", deviceHandler.DeviceStatus).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceId}/door/open", deviceHandler.OpenDoor).Methods(http.MethodPost)
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is operational."))
	}).Methods(http.MethodGet)

	return r
}
