package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"access.service/internal/core"
	"github.com/gorilla/mux"
)

type DeviceHandler struct {
	Service *core.AccessService
}

type EnrollRequest struct {
	EmployeeID int64 `json:"employeeId"`
}

// EnrollFingerprint assigns a slot, reserves the pending context and sends
// the enroll command. 202: the outcome arrives asynchronously and is polled
// via EnrollResult.
func (h *DeviceHandler) EnrollFingerprint(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.EmployeeID <= 0 {
		http.Error(w, "employeeId is required", http.StatusBadRequest)
		return
	}

	slot, err := h.Service.EnrollFingerprint(r.Context(), deviceID, req.EmployeeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"deviceId":   deviceID,
		"employeeId": req.EmployeeID,
		"slotId":     slot,
		"status":     "waiting_device_response",
	})
}

// DeleteFingerprint sends the delete command and removes the server binding.
func (h *DeviceHandler) DeleteFingerprint(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	slotID, err := strconv.Atoi(mux.Vars(r)["slotId"])
	if err != nil {
		http.Error(w, "Invalid slot id", http.StatusBadRequest)
		return
	}

	if err := h.Service.DeleteFingerprint(r.Context(), deviceID, slotID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"deviceId": deviceID,
		"slotId":   slotID,
		"status":   "delete_command_sent",
	})
}

// OpenDoor sends a remote unlock command.
func (h *DeviceHandler) OpenDoor(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	if err := h.Service.OpenDoor(r.Context(), deviceID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"deviceId": deviceID,
		"status":   "door_unlock_sent",
	})
}

// ListFingerprints returns the device's slot bindings.
func (h *DeviceHandler) ListFingerprints(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	fps, err := h.Service.ListFingerprints(r.Context(), deviceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	json.NewEncoder(w).Encode(fps)
}

// DeviceLogs returns the newest audit rows for a device.
func (h *DeviceHandler) DeviceLogs(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.Service.RecentLogs(r.Context(), deviceID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	json.NewEncoder(w).Encode(logs)
}

// DeviceStatus returns the computed connectivity and door state.
func (h *DeviceHandler) DeviceStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	device, err := h.Service.DeviceStatus(r.Context(), deviceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	json.NewEncoder(w).Encode(device)
}

// EnrollResult polls the latest terminal enroll response for a device+slot.
// 404 while the device has not answered yet.
func (h *DeviceHandler) EnrollResult(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	slotID, err := strconv.Atoi(mux.Vars(r)["slotId"])
	if err != nil {
		http.Error(w, "Invalid slot id", http.StatusBadRequest)
		return
	}

	result, err := h.Service.EnrollResult(r.Context(), deviceID, slotID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if result == nil {
		http.Error(w, "No enroll result yet", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(result)
}

// writeServiceError maps core sentinel errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrDeviceNotFound):
		http.Error(w, "Device not found", http.StatusNotFound)
	case errors.Is(err, core.ErrFingerprintNotFound):
		http.Error(w, "Fingerprint not found", http.StatusNotFound)
	case errors.Is(err, core.ErrDeviceFull):
		http.Error(w, "No free fingerprint slots on device", http.StatusConflict)
	case errors.Is(err, core.ErrEnrollInProgress):
		http.Error(w, "Enrollment already in progress for device", http.StatusConflict)
	default:
		http.Error(w, "Service error processing request", http.StatusInternalServerError)
	}
}
