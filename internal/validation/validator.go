package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// coordinate sanity on courier position reports
	v.RegisterStructValidation(updateLocationStructValidation, UpdateLocationRequest{})

	return v
}

// updateLocationStructValidation rejects coordinates outside WGS84 bounds.
func updateLocationStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateLocationRequest)

	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90) {
		sl.ReportError(req.Latitude, "latitude", "Latitude", "latitude_bounds", "")
	}
	if req.Longitude != nil && (*req.Longitude < -180 || *req.Longitude > 180) {
		sl.ReportError(req.Longitude, "longitude", "Longitude", "longitude_bounds", "")
	}
}
