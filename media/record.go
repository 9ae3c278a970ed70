// Package media defines the structured metadata record attached to
// correlated imagery, following the iFDO field vocabulary.
package media

import (
	"time"

	"github.com/GermanHydrogen/mritc-demo-pipeline/config"
	"github.com/GermanHydrogen/mritc-demo-pipeline/telemetry"
	"github.com/google/uuid"
)

// Agent identifies a person associated with an image record.
type Agent struct {
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

// License identifies the license attached to an image record.
type License struct {
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

// ImageData is the structured metadata record for one correlated media
// file. Optional fields are pointers; a nil pointer means the value
// could not be derived, never a zero reading.
type ImageData struct {
	DateTime                  time.Time `json:"image_datetime"`
	Latitude                  *float64  `json:"image_latitude,omitempty"`
	Longitude                 *float64  `json:"image_longitude,omitempty"`
	Altitude                  *float64  `json:"image_altitude,omitempty"`
	CoordinateReferenceSystem string    `json:"image_coordinate_reference_system"`
	Event                     string    `json:"image_event"`
	Platform                  string    `json:"image_platform"`
	Sensor                    string    `json:"image_sensor,omitempty"`
	UUID                      string    `json:"image_uuid"`
	PI                        *Agent    `json:"image_pi,omitempty"`
	Creators                  []Agent   `json:"image_creators,omitempty"`
	License                   *License  `json:"image_license,omitempty"`
	Copyright                 string    `json:"image_copyright,omitempty"`
	Abstract                  string    `json:"image_abstract,omitempty"`
	CameraPitchDegrees        *float64  `json:"image_camera_pitch_degrees,omitempty"`
	CameraRollDegrees         *float64  `json:"image_camera_roll_degrees,omitempty"`
	Acquisition               string    `json:"image_acquisition,omitempty"`
	Quality                   string    `json:"image_quality,omitempty"`
	Deployment                string    `json:"image_deployment,omitempty"`
	Navigation                string    `json:"image_navigation,omitempty"`
	Illumination              string    `json:"image_illumination,omitempty"`
	PixelMagnitude            string    `json:"image_pixel_magnitude,omitempty"`
	MarineZone                string    `json:"image_marine_zone,omitempty"`
	SpectralResolution        string    `json:"image_spectral_resolution,omitempty"`
	CaptureMode               string    `json:"image_capture_mode,omitempty"`
	FaunaAttraction           string    `json:"image_fauna_attraction,omitempty"`
	TargetEnvironment         string    `json:"image_target_environment,omitempty"`
	ItemIdentificationScheme  string    `json:"image_item_identification_scheme,omitempty"`
	CurationProtocol          string    `json:"image_curation_protocol,omitempty"`
}

const identificationScheme = "<platform_id>_<camera_id>_<voyage_id>_<deployment_number>_<datetimestamp>_<image_id>.<ext>"

// NewImageData builds the structured record for a media file captured
// at t, enriched from a matched telemetry row. rec may be nil when
// correlation produced no match; deployment-level constants are still
// attached.
func NewImageData(cfg *config.Config, t time.Time, rec *telemetry.Record) *ImageData {

	data := &ImageData{
		DateTime:                  t,
		CoordinateReferenceSystem: "EPSG:4326",
		Event:                     cfg.DeploymentID,
		Platform:                  cfg.PlatformID,
		UUID:                      uuid.New().String(),
		Copyright:                 cfg.Copyright,
		Abstract:                  cfg.Abstract,
		Acquisition:               "photo",
		Quality:                   "product",
		Deployment:                "survey",
		Navigation:                "satellite",
		Illumination:              "artificial light",
		PixelMagnitude:            "cm",
		MarineZone:                "seafloor",
		SpectralResolution:        "rgb",
		CaptureMode:               "timer",
		FaunaAttraction:           "none",
		TargetEnvironment:         "Benthic habitat",
		ItemIdentificationScheme:  identificationScheme,
		CurationProtocol:          "Processed with mritc-demo-pipeline",
	}

	if cfg.VoyagePI != "" {
		data.PI = &Agent{
			Name: cfg.VoyagePI,
			URI:  cfg.VoyagePIURI,
		}
	}

	for _, c := range cfg.Creators {
		data.Creators = append(data.Creators, Agent{
			Name: c.Name,
			URI:  c.URI,
		})
	}

	if cfg.License.Name != "" {
		data.License = &License{
			Name: cfg.License.Name,
			URI:  cfg.License.URI,
		}
	}

	if rec != nil {

		lat := rec.Latitude
		lon := rec.Longitude
		alt := rec.Altitude
		pitch := rec.Pitch
		roll := rec.Roll

		data.Latitude = &lat
		data.Longitude = &lon
		data.Altitude = &alt
		data.CameraPitchDegrees = &pitch
		data.CameraRollDegrees = &roll
		data.Sensor = rec.Camera
	}

	return data
}
