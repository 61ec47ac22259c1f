package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/idiotic-core/internal/device"
)

// DeviceView is the REST representation of a device.
type DeviceView struct {
	ID         string         `json:"id"`
	Class      string         `json:"class"`
	Name       string         `json:"name"`
	Connected  bool           `json:"connected"`
	Remote     string         `json:"remote,omitempty"`
	Attributes map[string]any `json:"attributes"`
	Actions    []string       `json:"actions"`
}

func (s *Server) deviceView(d device.Device) DeviceView {
	v := DeviceView{
		ID:         d.ID(),
		Class:      d.Class(),
		Name:       d.Name(),
		Attributes: device.Snapshot(d),
		Actions:    d.Actions(),
	}
	if conn, ok := s.registry.Connection(d.ID()); ok {
		v.Connected = true
		v.Remote = conn.RemoteAddr()
	}
	return v
}

// handleListDevices returns all devices ordered by id.
//
// Query parameters:
//   - class: only devices of this class
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("class")

	devices := make([]DeviceView, 0, s.registry.Len())
	for _, d := range s.registry.Devices() {
		if class != "" && d.Class() != class {
			continue
		}
		devices = append(devices, s.deviceView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(d))
}

// handleGetAttribute returns one attribute value.
func (s *Server) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	attr := chi.URLParam(r, "attr")
	v, err := device.Read(d, attr)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": d.ID(), "attr": attr, "value": v})
}

// SetAttributeRequest is the body of PUT /devices/{id}/attributes/{attr}.
type SetAttributeRequest struct {
	Value any `json:"value"`
}

// handleSetAttribute writes an attribute as a local change: subscribers
// are notified, the device is pushed the new value, and routines fired
// by the write run before the response is sent.
func (s *Server) handleSetAttribute(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	attr := chi.URLParam(r, "attr")
	if _, ok := d.Attribute(attr); !ok {
		writeNotFound(w, "device has no attribute "+attr)
		return
	}

	var req SetAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if _, err := device.Update(r.Context(), d, attr, req.Value); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.drain(r)

	v, _ := device.Read(d, attr) //nolint:errcheck // just written
	writeJSON(w, http.StatusOK, map[string]any{"id": d.ID(), "attr": attr, "value": v})
}

// handleInvokeAction runs a device action.
func (s *Server) handleInvokeAction(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	action := chi.URLParam(r, "action")
	if err := device.Invoke(r.Context(), d, action); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.drain(r)
	writeJSON(w, http.StatusOK, s.deviceView(d))
}

func (s *Server) drain(r *http.Request) {
	if s.engine != nil {
		s.engine.Drain(r.Context())
	}
}
